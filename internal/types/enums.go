package types

// ProjectStatus is the lifecycle stage of a project.
type ProjectStatus string

const (
	ProjectPending  ProjectStatus = "Pending"
	ProjectActive   ProjectStatus = "Active"
	ProjectFinished ProjectStatus = "Finished"
)

// ParseProjectStatus returns the status named by s, or ok=false if s is not one.
func ParseProjectStatus(s string) (ProjectStatus, bool) {
	switch ProjectStatus(s) {
	case ProjectPending, ProjectActive, ProjectFinished:
		return ProjectStatus(s), true
	}
	return ProjectPending, false
}

// UserRole is the role the current user holds on a project.
type UserRole string

const (
	RoleArchitect UserRole = "Architect"
	RoleEngineer  UserRole = "Engineer"
	RoleDeveloper UserRole = "Developer"
)

// ParseUserRole returns the role named by s, or ok=false if s is not one.
func ParseUserRole(s string) (UserRole, bool) {
	switch UserRole(s) {
	case RoleArchitect, RoleEngineer, RoleDeveloper:
		return UserRole(s), true
	}
	return RoleArchitect, false
}

// TodoStatus is the workflow state of a todo.
type TodoStatus string

const (
	TodoPending    TodoStatus = "Pending"
	TodoAssigned   TodoStatus = "Assigned"
	TodoInProgress TodoStatus = "In Progress"
	TodoCompleted  TodoStatus = "Completed"
)

// TodoStatuses lists every todo status in workflow order.
func TodoStatuses() []TodoStatus {
	return []TodoStatus{TodoPending, TodoAssigned, TodoInProgress, TodoCompleted}
}

// ParseTodoStatus returns the status named by s, or ok=false if s is not one.
func ParseTodoStatus(s string) (TodoStatus, bool) {
	for _, st := range TodoStatuses() {
		if string(st) == s {
			return st, true
		}
	}
	return TodoPending, false
}

// TodoType is the construction trade a todo belongs to.
type TodoType string

const (
	TypePlanning     TodoType = "Planning"
	TypeDesign       TodoType = "Design"
	TypeSiteWorks    TodoType = "Site Works"
	TypeConcrete     TodoType = "Concrete Works"
	TypeSteel        TodoType = "Steel Works"
	TypeGlass        TodoType = "Glass Works"
	TypeDrywall      TodoType = "Drywall/ Partition"
	TypeMasonry      TodoType = "Mansory"
	TypeWoodworks    TodoType = "Woodworks/ Carpentry"
	TypePlumbing     TodoType = "Plumbing"
	TypeElectrical   TodoType = "Electrical"
	TypeHVAC         TodoType = "HVAC"
	TypeFinishWorks  TodoType = "Finish Works"
	TypeDataSecurity TodoType = "Data/ Security"
	TypeLandscape    TodoType = "Landscape/ External"
	TypeFireSafety   TodoType = "Fire Safety"
)

// TodoTypeInfo carries the display metadata of a trade.
type TodoTypeInfo struct {
	Type  TodoType `json:"type"`
	Icon  string   `json:"icon"`
	Label string   `json:"label"`
}

var todoTypes = []TodoTypeInfo{
	{TypePlanning, "draw", "Planning"},
	{TypeDesign, "design_services", "Design"},
	{TypeSiteWorks, "grass", "Site Works"},
	{TypeConcrete, "apartment", "Concrete Works"},
	{TypeSteel, "h_mobiledata", "Steel Works"},
	{TypeGlass, "window", "Glass Works"},
	{TypeDrywall, "border_style", "Drywall/ Partition"},
	{TypeMasonry, "dashboard", "Mansory"},
	{TypeWoodworks, "carpenter", "Woodworks/ Carpentry"},
	{TypePlumbing, "plumbing", "Plumbing"},
	{TypeElectrical, "outlet", "Electrical"},
	{TypeHVAC, "ac_unit", "HVAC"},
	{TypeFinishWorks, "palette", "Finish Works"},
	{TypeDataSecurity, "security", "Data/ Security"},
	{TypeLandscape, "grass", "Landscape/ External"},
	{TypeFireSafety, "local_fire_department", "Fire Safety"},
}

// TodoTypes returns the 16 trades in their canonical order.
func TodoTypes() []TodoTypeInfo {
	out := make([]TodoTypeInfo, len(todoTypes))
	copy(out, todoTypes)
	return out
}

// ParseTodoType returns the trade named by s, or ok=false if s is not one.
func ParseTodoType(s string) (TodoType, bool) {
	for _, info := range todoTypes {
		if string(info.Type) == s {
			return info.Type, true
		}
	}
	return TypePlanning, false
}

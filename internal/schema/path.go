package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ProjectsCollection is the collection path holding all projects.
const ProjectsCollection = "projects"

const todosCollection = "todos"

// ErrInvalidPath is returned for a collection path that is empty, has empty
// segments, or does not name a collection.
var ErrInvalidPath = errors.New("invalid collection path")

// TodosPath returns the collection path of the todos owned by projectID.
func TodosPath(projectID string) string {
	return ProjectsCollection + "/" + projectID + "/" + todosCollection
}

// ValidateCollectionPath checks that path names a collection: non-empty
// segments separated by "/", an odd number of them.
func ValidateCollectionPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" || s == "." || s == ".." {
			return fmt.Errorf("%w: %q has an empty or relative segment", ErrInvalidPath, path)
		}
	}
	if len(segments)%2 == 0 {
		return fmt.Errorf("%w: %q names a document, not a collection", ErrInvalidPath, path)
	}
	return nil
}

// DocumentPath joins a collection path and a document id.
func DocumentPath(collection, id string) string {
	return collection + "/" + id
}

// ParentProjectID returns the project id of a todos collection path, or ""
// for any other path.
func ParentProjectID(path string) string {
	segments := strings.Split(path, "/")
	if len(segments) == 3 && segments[0] == ProjectsCollection && segments[2] == todosCollection {
		return segments[1]
	}
	return ""
}

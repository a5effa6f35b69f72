// Package schema defines the persisted document shapes for sitebook storage.
//
// # Overview
//
// Projects and their todos live in a hierarchical document store. Every
// document belongs to a collection path with an odd number of segments:
//
//	projects                      all projects
//	projects/{projectID}/todos    the todos of one project
//
// A document is a flat map of fields. The id is never part of the data; it is
// the document key within its collection. Local-only state (sync state,
// nested todos) is never written.
//
// # Project Documents
//
//	{
//	  "name": "Riverside Tower",
//	  "description": "Residential, 14 floors",
//	  "status": "Active",
//	  "userRole": "Engineer",
//	  "finishDate": "2026-12-31T00:00:00Z",
//	  "cost": 1250000,
//	  "progress": 40
//	}
//
// # Todo Documents
//
//	{
//	  "projectId": "5b0c...",
//	  "title": "Pour ground slab",
//	  "description": "",
//	  "type": "Concrete Works",
//	  "status": "In Progress",
//	  "done": false,
//	  "date": "2026-03-01T09:00:00Z",
//	  "finishDate": null
//	}
//
// # Export Files
//
// The export format is a list of ProjectExport values, each carrying its
// todos inline. It is written as indented JSON or as YAML:
//
//	exp := schema.NewExport(projects)
//	err := schema.WriteExport(w, schema.FormatYAML, exp)
//
//	exp, err := schema.ReadExport(r, schema.FormatJSON)
//	for _, p := range exp.Projects {
//	    in := p.ProjectInput()
//	    ...
//	}
//
// Reading is lenient in the same way entity construction is: fields that are
// missing or of the wrong type fall back to their defaults. Only a file that
// does not decode at all is an error.
package schema

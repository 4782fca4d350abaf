package models

import "sort"

// Project owns its folders, ordered by id. Name uniqueness is enforced
// server-side.
type Project struct {
	ID   int
	Name string

	folders map[int]*Folder
}

func NewProject(id int, name string) *Project {
	return &Project{ID: id, Name: name, folders: make(map[int]*Folder)}
}

// AddFolder inserts or replaces a folder by id.
func (p *Project) AddFolder(f *Folder) {
	f.ProjectID = p.ID
	p.folders[f.ID] = f
}

// Folder returns the folder with the given id, or nil.
func (p *Project) Folder(id int) *Folder {
	return p.folders[id]
}

// Folders returns the folders ordered by id.
func (p *Project) Folders() []*Folder {
	out := make([]*Folder, 0, len(p.folders))
	for _, f := range p.folders {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Folder is a typed container of issues within a project. Stamp is the
// folder's monotonic change counter, the watermark for incremental sync.
type Folder struct {
	ID        int
	ProjectID int
	TypeID    int
	Name      string
	Stamp     int

	Alerts []Alert
}

// Alert subscribes a folder to a stored view.
type Alert struct {
	ID       int
	FolderID int
	ViewID   int
}

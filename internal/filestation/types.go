package filestation

// envelope is the response shape every FileStation endpoint uses.
type envelope[T any] struct {
	Success bool            `json:"success"`
	Data    *T              `json:"data,omitempty"`
	Error   *envelopeError  `json:"error,omitempty"`
}

type envelopeError struct {
	Code   int               `json:"code"`
	Errors *loginErrorErrors `json:"errors,omitempty"`
}

// loginErrorErrors is the login endpoint's error payload shape; other
// endpoints leave Errors unset, which is fine since it is a pointer.
type loginErrorErrors struct {
	Token string              `json:"token"`
	Types []map[string]string `json:"types"`
}

// LoginResult is SYNO.API.Auth login's success payload.
type LoginResult struct {
	Sid string `json:"sid"`
	Did string `json:"did,omitempty"`
}

// CreateFolderResult is SYNO.FileStation.CreateFolder's success payload.
type CreateFolderResult struct {
	Folders []FolderModel `json:"folders"`
}

// FolderModel describes one folder created or listed by FileStation.
type FolderModel struct {
	IsDir bool   `json:"isdir"`
	Name  string `json:"name"`
	Path  string `json:"path"`
}

// ListResult is SYNO.FileStation.List's "list" method success payload.
type ListResult struct {
	Total  int    `json:"total"`
	Offset int    `json:"offset"`
	Files  []File `json:"files"`
}

// ListShareResult is SYNO.FileStation.List's "list_share" method success payload.
type ListShareResult struct {
	Total  int     `json:"total"`
	Offset int     `json:"offset"`
	Shares []Share `json:"shares"`
}

// Share describes one top-level shared folder.
type Share struct {
	Path       string          `json:"path"`
	Name       string          `json:"name"`
	IsDir      bool            `json:"isdir"`
	Additional *FileAdditional `json:"additional,omitempty"`
}

// File describes one filesystem entry returned by the list method.
type File struct {
	Path       string          `json:"path"`
	Name       string          `json:"name"`
	IsDir      bool            `json:"isdir"`
	Additional *FileAdditional `json:"additional,omitempty"`
}

// FileAdditional is the optional extra metadata the "additional" parameter
// requests. The transfer pipeline only needs existence and name today, but
// it is modeled fully here so callers and tests have a typed surface to
// assert against instead of groping through a map[string]any.
type FileAdditional struct {
	RealPath       string     `json:"real_path,omitempty"`
	Size           int64      `json:"size,omitempty"`
	Owner          *FileOwner `json:"owner,omitempty"`
	Time           *FileTime  `json:"time,omitempty"`
	Perm           *FilePerm  `json:"perm,omitempty"`
	MountPointType string     `json:"mount_point_type,omitempty"`
	Type           string     `json:"type,omitempty"`
	VolumeStatus   string     `json:"volume_status,omitempty"`
}

// FileOwner is the "owner" field of FileAdditional.
type FileOwner struct {
	User  string `json:"user"`
	Group string `json:"group"`
	UID   int    `json:"uid"`
	GID   int    `json:"gid"`
}

// FileTime is the "time" field of FileAdditional.
type FileTime struct {
	Atime int64 `json:"atime"`
	Mtime int64 `json:"mtime"`
	Ctime int64 `json:"ctime"`
	Crtime int64 `json:"crtime"`
}

// FilePerm is the "perm" field of FileAdditional.
type FilePerm struct {
	Posix     uint32   `json:"posix"`
	IsACLMode bool     `json:"is_acl_mode"`
	ACL       *FileACL `json:"acl,omitempty"`
}

// FileACL is the "acl" field of FilePerm.
type FileACL struct {
	Append bool `json:"append"`
	Del    bool `json:"del"`
	Exec   bool `json:"exec"`
	Read   bool `json:"read"`
	Write  bool `json:"write"`
}

// additionalFields is the full set of fields the "additional" query
// parameter accepts, comma-joined by callers that want them.
var additionalFields = []string{
	"real_path", "size", "owner", "time", "perm", "mount_point_type", "type", "volume_status",
}

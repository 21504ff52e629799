package onedrive

import "time"

// Item is a file or folder in the drive.
type Item struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	WebURL               string    `json:"webUrl,omitempty"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime,omitzero"`
	Folder               *Folder   `json:"folder,omitempty"`
	File                 *File     `json:"file,omitempty"`
}

// IsFolder reports whether the item is a folder.
func (i Item) IsFolder() bool {
	return i.Folder != nil
}

// Folder is the folder facet of an item.
type Folder struct {
	ChildCount int `json:"childCount"`
}

// File is the file facet of an item.
type File struct {
	MimeType string `json:"mimeType,omitempty"`
}

type itemList struct {
	Value    []Item `json:"value"`
	NextLink string `json:"@odata.nextLink,omitempty"`
}

type uploadSession struct {
	UploadURL          string    `json:"uploadUrl"`
	ExpirationDateTime time.Time `json:"expirationDateTime,omitzero"`
}

// Package onedrive manages files in the user's OneDrive through the Microsoft
// Graph REST API.
//
// Paths are drive paths relative to the root folder, such as "/" or
// "/Documents/Taxes". Files up to SimpleUploadLimit are uploaded in one PUT;
// larger files go through an upload session in ChunkSize pieces.
package onedrive

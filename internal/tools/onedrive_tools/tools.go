package onedrive_tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/homedash/internal/server"
	"github.com/teemow/homedash/internal/session"
	"github.com/teemow/homedash/internal/tools/batch"
	"github.com/teemow/homedash/internal/tools/common"
)

// maxDownloadBytes bounds the content returned by onedrive_download.
const maxDownloadBytes = 1 << 20

var pathArg = mcp.WithString("path",
	mcp.Description("Folder path from the drive root, e.g. '/Documents/Taxes'. Defaults to the root."),
)

// RegisterOneDriveTools registers the OneDrive tools with the MCP server.
func RegisterOneDriveTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if _, err := sc.Sessions().Get(session.OneDrive); err != nil {
		return fmt.Errorf("onedrive tools need the %s session: %w", session.OneDrive, err)
	}

	listTool := mcp.NewTool("onedrive_list",
		mcp.WithDescription("List the files and folders in a OneDrive folder, newest first"),
		pathArg,
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("onedrive_list", session.OneDrive, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleList(ctx, request, sc)
	}))

	downloadTool := mcp.NewTool("onedrive_download",
		mcp.WithDescription("Return the content of a OneDrive file. Text is returned as is, other content base64-encoded."),
		mcp.WithString("itemId",
			mcp.Required(),
			mcp.Description("The ID of the file"),
		),
	)
	s.AddTool(downloadTool, common.InstrumentedToolHandler("onedrive_download", session.OneDrive, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDownload(ctx, request, sc)
	}))

	if readOnly {
		return nil
	}

	createFolderTool := mcp.NewTool("onedrive_create_folder",
		mcp.WithDescription("Create a folder. A name clash is resolved by renaming the new folder."),
		pathArg,
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the new folder"),
		),
	)
	s.AddTool(createFolderTool, common.InstrumentedToolHandler("onedrive_create_folder", session.OneDrive, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCreateFolder(ctx, request, sc)
	}))

	deleteTool := mcp.NewTool("onedrive_delete",
		mcp.WithDescription("Move OneDrive files or folders to the recycle bin"),
		mcp.WithString("itemIds",
			mcp.Required(),
			mcp.Description("Item ID (string) or array of item IDs"),
		),
	)
	s.AddTool(deleteTool, common.InstrumentedToolHandler("onedrive_delete", session.OneDrive, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDelete(ctx, request, sc)
	}))

	uploadTool := mcp.NewTool("onedrive_upload",
		mcp.WithDescription("Upload a text file, replacing an existing file of the same name"),
		pathArg,
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("File name"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("File content"),
		),
		mcp.WithBoolean("base64",
			mcp.Description("Content is base64-encoded binary data"),
		),
	)
	s.AddTool(uploadTool, common.InstrumentedToolHandler("onedrive_upload", session.OneDrive, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleUpload(ctx, request, sc)
	}))

	return nil
}

func handleList(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	path := common.StringArg(request, "path", "/")

	client, err := sc.OneDriveClient()
	if err != nil {
		return nil, err
	}

	items, err := client.ListChildren(ctx, path)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("%s is empty.", path)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s contains %d items:\n\n", path, len(items))
	for _, item := range items {
		if item.IsFolder() {
			fmt.Fprintf(&b, "[folder] %s (%d items)\n", item.Name, item.Folder.ChildCount)
		} else {
			fmt.Fprintf(&b, "[file]   %s (%s)\n", item.Name, formatSize(item.Size))
		}
		fmt.Fprintf(&b, "   ID: %s\n", item.ID)
		if !item.LastModifiedDateTime.IsZero() {
			fmt.Fprintf(&b, "   Modified: %s\n", item.LastModifiedDateTime.Format(time.RFC3339))
		}
	}

	return mcp.NewToolResultText(b.String()), nil
}

func handleDownload(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id, errResult := common.RequiredString(request, "itemId")
	if errResult != nil {
		return errResult, nil
	}

	client, err := sc.OneDriveClient()
	if err != nil {
		return nil, err
	}

	data, err := client.Download(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(data) > maxDownloadBytes {
		return mcp.NewToolResultError(fmt.Sprintf("file is %s, larger than the %s returned by this tool", formatSize(int64(len(data))), formatSize(maxDownloadBytes))), nil
	}

	if utf8.Valid(data) {
		return mcp.NewToolResultText(string(data)), nil
	}
	return mcp.NewToolResultText("base64:" + base64.StdEncoding.EncodeToString(data)), nil
}

func handleCreateFolder(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	name, errResult := common.RequiredString(request, "name")
	if errResult != nil {
		return errResult, nil
	}
	path := common.StringArg(request, "path", "/")

	client, err := sc.OneDriveClient()
	if err != nil {
		return nil, err
	}

	item, err := client.CreateFolder(ctx, path, name)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("Folder created: %s\nID: %s\nLink: %s", item.Name, item.ID, item.WebURL)), nil
}

func handleDelete(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ids, err := batch.ParseIDs(request.GetArguments()["itemIds"], "itemIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := sc.OneDriveClient()
	if err != nil {
		return nil, err
	}

	outcome, err := batch.Run(ctx, ids, func(ctx context.Context, id string) (string, error) {
		if err := client.Delete(ctx, id); err != nil {
			return "", err
		}
		return "moved to the recycle bin", nil
	})
	if err != nil {
		return nil, err
	}

	if len(ids) == 1 && outcome.Successful == 1 {
		return mcp.NewToolResultText(fmt.Sprintf("Item %s moved to the recycle bin.", ids[0])), nil
	}
	return mcp.NewToolResultText(outcome.JSON()), nil
}

func handleUpload(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	name, errResult := common.RequiredString(request, "name")
	if errResult != nil {
		return errResult, nil
	}
	content, errResult := common.RequiredString(request, "content")
	if errResult != nil {
		return errResult, nil
	}
	path := common.StringArg(request, "path", "/")

	data := []byte(content)
	if common.BoolArg(request, "base64", false) {
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("content is not valid base64: %v", err)), nil
		}
		data = decoded
	}

	client, err := sc.OneDriveClient()
	if err != nil {
		return nil, err
	}

	item, err := client.Upload(ctx, path, name, data)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("Uploaded %s (%s)\nID: %s", item.Name, formatSize(item.Size), item.ID)), nil
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

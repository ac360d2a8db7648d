package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var _ RoomManager = (*Client)(nil)

// Client talks to the chat platform's room-management REST API using a
// bot token. It implements RoomManager.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type createRoomRequest struct {
	Name        string      `json:"name"`
	Kind        RoomKind    `json:"kind"`
	ParentGroup string      `json:"parentGroup,omitempty"`
	UserLimit   int         `json:"userLimit,omitempty"`
	Overwrites  []Overwrite `json:"overwrites,omitempty"`
}

type roomResponse struct {
	ID          string   `json:"id"`
	Kind        RoomKind `json:"kind"`
	ParentGroup string   `json:"parentGroup"`
	MemberCount int      `json:"memberCount"`
}

type permissionsResponse struct {
	ManageRooms bool `json:"manageRooms"`
}

func (c *Client) CreateRoom(ctx context.Context, params CreateRoomParams) (roomID string, err error) {
	var room roomResponse
	err = c.do(ctx, http.MethodPost,
		fmt.Sprintf("/guilds/%s/rooms", url.PathEscape(params.GuildID)),
		params.Reason,
		createRoomRequest{
			Name:        params.Name,
			Kind:        RoomKindVoice,
			ParentGroup: params.ParentGroup,
			UserLimit:   params.UserLimit,
			Overwrites:  params.Overwrites,
		}, &room)
	if err != nil {
		return
	}

	roomID = room.ID
	return
}

func (c *Client) MoveMember(ctx context.Context, guildID, memberID, roomID string) error {
	return c.do(ctx, http.MethodPatch,
		fmt.Sprintf("/guilds/%s/members/%s", url.PathEscape(guildID), url.PathEscape(memberID)),
		"",
		map[string]string{"roomId": roomID}, nil)
}

func (c *Client) DeleteRoom(ctx context.Context, roomID, reason string) error {
	return c.do(ctx, http.MethodDelete,
		fmt.Sprintf("/rooms/%s", url.PathEscape(roomID)),
		reason, nil, nil)
}

func (c *Client) UpdateRoomAccess(ctx context.Context, roomID string, userLimit *int, overwrites []Overwrite) error {
	body := struct {
		UserLimit  *int        `json:"userLimit,omitempty"`
		Overwrites []Overwrite `json:"overwrites"`
	}{
		UserLimit:  userLimit,
		Overwrites: overwrites,
	}

	if body.Overwrites == nil {
		body.Overwrites = make([]Overwrite, 0)
	}

	return c.do(ctx, http.MethodPatch,
		fmt.Sprintf("/rooms/%s/access", url.PathEscape(roomID)),
		"", body, nil)
}

func (c *Client) LiveOccupancy(ctx context.Context, roomID string) (count int, err error) {
	var room roomResponse
	if err = c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/%s", url.PathEscape(roomID)), "", nil, &room); err != nil {
		return
	}

	count = room.MemberCount
	return
}

func (c *Client) RoomParent(ctx context.Context, roomID string) (parent string, err error) {
	var room roomResponse
	if err = c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/%s", url.PathEscape(roomID)), "", nil, &room); err != nil {
		return
	}

	parent = room.ParentGroup
	return
}

func (c *Client) HasManageRights(ctx context.Context, guildID string) (ok bool, err error) {
	var perms permissionsResponse
	if err = c.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/me/permissions", url.PathEscape(guildID)), "", nil, &perms); err != nil {
		return
	}

	ok = perms.ManageRooms
	return
}

func (c *Client) do(ctx context.Context, method, path, reason string, in, out interface{}) (err error) {
	var body *bytes.Buffer
	if in != nil {
		body = new(bytes.Buffer)
		if err = json.NewEncoder(body).Encode(in); err != nil {
			return
		}
	}

	var req *http.Request
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return
	}

	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reason != "" {
		req.Header.Set("X-Audit-Reason", reason)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrOperationFailed, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s", ErrPermissionDenied, method, path)
	case resp.StatusCode == http.StatusNotFound:
		// The room is already gone or invisible to the bot. Deletion
		// paths treat this as the quiet variant.
		return fmt.Errorf("%w: %s %s", ErrNoAccess, method, path)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s %s: status %d", ErrOperationFailed, method, path, resp.StatusCode)
	}

	if out != nil {
		if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode %s %s: %v", ErrOperationFailed, method, path, err)
		}
	}

	return
}

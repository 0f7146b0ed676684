package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed ChatService client.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to a daemon listening on a Unix socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes a connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in proto.Message) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status reports the daemon's session and connection state.
func (c *Client) Status(ctx context.Context) (StatusInfo, error) {
	out, err := c.invoke(ctx, "Status", &emptypb.Empty{})
	if err != nil {
		return StatusInfo{}, err
	}
	return statusFromStruct(out), nil
}

// Send submits a new message. queued is true when the socket was not open
// and the frame was buffered.
func (c *Client) Send(ctx context.Context, text string) (queued bool, err error) {
	return c.command(ctx, "Send", map[string]any{"text": text})
}

// Edit replaces the text of messageID. queued has the same meaning as in Send.
func (c *Client) Edit(ctx context.Context, messageID, text string) (queued bool, err error) {
	return c.command(ctx, "Edit", map[string]any{"message_id": messageID, "text": text})
}

// Delete removes messageIDs in one frame. queued has the same meaning as in Send.
func (c *Client) Delete(ctx context.Context, messageIDs []string) (queued bool, err error) {
	ids := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = id
	}
	return c.command(ctx, "Delete", map[string]any{"message_ids": ids})
}

func (c *Client) command(ctx context.Context, method string, fields map[string]any) (bool, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return false, err
	}
	out, err := c.invoke(ctx, method, in)
	if err != nil {
		return false, err
	}
	return out.GetFields()["queued"].GetBoolValue(), nil
}

// Rows returns the last limit timeline rows; zero returns all of them.
func (c *Client) Rows(ctx context.Context, limit int) ([]Row, error) {
	in, _ := structpb.NewStruct(map[string]any{"limit": limit})
	out, err := c.invoke(ctx, "Rows", in)
	if err != nil {
		return nil, err
	}
	values := out.GetFields()["rows"].GetListValue().GetValues()
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = rowFromValue(v)
	}
	return rows, nil
}

// Search runs a full-text query over cached messages of the current session,
// or of every cached session when allSessions is set.
func (c *Client) Search(ctx context.Context, query string, limit int, allSessions bool) ([]SearchHit, error) {
	in, err := structpb.NewStruct(map[string]any{"query": query, "limit": limit, "all_sessions": allSessions})
	if err != nil {
		return nil, err
	}
	out, err := c.invoke(ctx, "Search", in)
	if err != nil {
		return nil, err
	}
	values := out.GetFields()["results"].GetListValue().GetValues()
	hits := make([]SearchHit, len(values))
	for i, v := range values {
		hits[i] = hitFromValue(v)
	}
	return hits, nil
}

// Watch streams events with the given kind prefix to fn until ctx is done,
// the server ends the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(WatchEvent) error) error {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("Watch"))
	if err != nil {
		return err
	}
	in, _ := structpb.NewStruct(map[string]any{"prefix": prefix})
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(watchEventFromStruct(out)); err != nil {
			return err
		}
	}
}

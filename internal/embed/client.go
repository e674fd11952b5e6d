package embed

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region methods
const (
	embedMethod  = "/adaptive.CodecService/Embed"
	searchMethod = "/adaptive.CodecService/SearchVector"
)

// #endregion methods

// #region client-struct

// Client wraps the gRPC connection to the inference service. Requests and
// responses travel as structpb.Struct so no generated stubs are needed.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
	dim  int
}

// #endregion client-struct

// #region constructor

// NewClient connects to the inference service. dim > 0 enables a dimension check on every embedding.
func NewClient(addr string, dim int) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn, dim: dim}, nil
}

// NewClientWithConn creates a Client over an existing connection (bufconn in tests).
func NewClientWithConn(cc grpc.ClientConnInterface, dim int) *Client {
	return &Client{cc: cc, dim: dim}
}

// #endregion constructor

// #region close

// Close shuts down the gRPC connection if the client owns it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region embed

// Embed sends text to the inference service for embedding.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	req, err := structpb.NewStruct(map[string]any{"text": text})
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, embedMethod, req, resp); err != nil {
		return nil, fmt.Errorf("embed rpc: %w: %w", ErrUpstreamUnavailable, err)
	}

	values := resp.GetFields()["embedding"].GetListValue().GetValues()
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.GetNumberValue())
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embed rpc: %w: empty embedding", ErrUpstreamUnavailable)
	}
	if c.dim > 0 && len(vec) != c.dim {
		return nil, fmt.Errorf("embed rpc: %w: got %d dims, want %d", ErrUpstreamUnavailable, len(vec), c.dim)
	}
	return vec, nil
}

// #endregion embed

// #region search

// Search queries the knowledge store with an embedding vector.
func (c *Client) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	vec := make([]any, len(query))
	for i, f := range query {
		vec[i] = float64(f)
	}
	req, err := structpb.NewStruct(map[string]any{"vector": vec, "k": k})
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, searchMethod, req, resp); err != nil {
		return nil, fmt.Errorf("search rpc: %w: %w", ErrUpstreamUnavailable, err)
	}

	results := resp.GetFields()["results"].GetListValue().GetValues()
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		fields := r.GetStructValue().GetFields()
		hits = append(hits, Hit{
			Text:       fields["text"].GetStringValue(),
			Similarity: clamp32(float32(fields["similarity"].GetNumberValue())),
			Source:     fields["source"].GetStringValue(),
		})
	}
	return hits, nil
}

// #endregion search

func clamp32(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

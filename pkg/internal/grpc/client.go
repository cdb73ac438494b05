package grpc

import (
	"context"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
	"google.golang.org/grpc"
)

type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ledgerServiceName+"/"+method, in, out, opts...)
}

func (c *LedgerClient) CreatePoll(ctx context.Context, in *CreatePollRequest, opts ...grpc.CallOption) (*models.Poll, error) {
	out := new(models.Poll)
	if err := c.invoke(ctx, "CreatePoll", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) CastVote(ctx context.Context, in *CastVoteRequest, opts ...grpc.CallOption) (*models.VoterRecord, error) {
	out := new(models.VoterRecord)
	if err := c.invoke(ctx, "CastVote", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) ClosePoll(ctx context.Context, in *PollRequest, opts ...grpc.CallOption) (*models.Poll, error) {
	out := new(models.Poll)
	if err := c.invoke(ctx, "ClosePoll", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) GetPoll(ctx context.Context, in *PollRequest, opts ...grpc.CallOption) (*models.Poll, error) {
	out := new(models.Poll)
	if err := c.invoke(ctx, "GetPoll", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) GetVoterRecord(ctx context.Context, in *GetVoterRecordRequest, opts ...grpc.CallOption) (*models.VoterRecord, error) {
	out := new(models.VoterRecord)
	if err := c.invoke(ctx, "GetVoterRecord", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

type tokenCredentials string

func (t tokenCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

func (t tokenCredentials) RequireTransportSecurity() bool {
	return false
}

// WithToken authenticates a single call.
func WithToken(token string) grpc.CallOption {
	return grpc.PerRPCCredentials(tokenCredentials(token))
}

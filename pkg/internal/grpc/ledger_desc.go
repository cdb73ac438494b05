package grpc

import (
	"context"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
	"google.golang.org/grpc"
)

const ledgerServiceName = "ballot.Ledger"

type CreatePollRequest struct {
	PollID      uint64   `json:"poll_id"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

type CastVoteRequest struct {
	Poll        string `json:"poll"`
	OptionIndex uint32 `json:"option_index"`
}

type PollRequest struct {
	Poll string `json:"poll"`
}

type GetVoterRecordRequest struct {
	Poll  string `json:"poll"`
	Voter string `json:"voter"`
}

type LedgerServer interface {
	CreatePoll(context.Context, *CreatePollRequest) (*models.Poll, error)
	CastVote(context.Context, *CastVoteRequest) (*models.VoterRecord, error)
	ClosePoll(context.Context, *PollRequest) (*models.Poll, error)
	GetPoll(context.Context, *PollRequest) (*models.Poll, error)
	GetVoterRecord(context.Context, *GetVoterRecordRequest) (*models.VoterRecord, error)
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

// unaryHandler adapts a typed method to the shape grpc dispatches to.
func unaryHandler[Req any, Resp any](method string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ledgerServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreatePoll", LedgerServer.CreatePoll),
		unaryHandler("CastVote", LedgerServer.CastVote),
		unaryHandler("ClosePoll", LedgerServer.ClosePoll),
		unaryHandler("GetPoll", LedgerServer.GetPoll),
		unaryHandler("GetVoterRecord", LedgerServer.GetVoterRecord),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ballot/ledger",
}

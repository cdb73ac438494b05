package grpc

import (
	"context"
	"math"
	"strings"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/address"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const errorDomain = "ballot.hypernet"

func (v *App) callerOf(ctx context.Context) (address.Address, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return address.Address{}, status.Error(codes.Unauthenticated, "missing authorization metadata")
	}
	token, ok := strings.CutPrefix(values[0], "Bearer ")
	if !ok {
		return address.Address{}, status.Error(codes.Unauthenticated, "authorization must be a bearer token")
	}
	caller, err := v.authn.Authenticate(strings.TrimSpace(token))
	if err != nil {
		return address.Address{}, status.Error(codes.Unauthenticated, err.Error())
	}
	return caller, nil
}

func parseAddress(field, in string) (address.Address, error) {
	out, err := address.Parse(in)
	if err != nil {
		return out, status.Errorf(codes.InvalidArgument, "%s: %v", field, err)
	}
	return out, nil
}

func ledgerStatus(err error) error {
	var code codes.Code
	switch ledger.KindOf(err) {
	case ledger.KindValidation:
		code = codes.InvalidArgument
	case ledger.KindCollision:
		code = codes.AlreadyExists
	case ledger.KindPrecondition:
		code = codes.FailedPrecondition
		if ledger.CodeOf(err) == ledger.ErrPollNotFound.Code {
			code = codes.NotFound
		}
	case ledger.KindUnauthorized:
		code = codes.PermissionDenied
	case ledger.KindNotFound:
		code = codes.NotFound
	default:
		log.Error().Err(err).Msg("An error occurred when handling ledger call...")
		return status.Error(codes.Internal, err.Error())
	}

	st := status.New(code, err.Error())
	if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: ledger.CodeOf(err),
		Domain: errorDomain,
	}); derr == nil {
		st = detailed
	}
	return st.Err()
}

// ReasonOf returns the ledger error code carried by a status error.
func ReasonOf(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			return info.GetReason()
		}
	}
	return ""
}

func (v *App) CreatePoll(ctx context.Context, in *CreatePollRequest) (*models.Poll, error) {
	caller, err := v.callerOf(ctx)
	if err != nil {
		return nil, err
	}

	poll, err := v.ledger.CreatePoll(ctx, caller, in.PollID, in.Description, in.Options)
	if err != nil {
		return nil, ledgerStatus(err)
	}
	return &poll, nil
}

func (v *App) CastVote(ctx context.Context, in *CastVoteRequest) (*models.VoterRecord, error) {
	caller, err := v.callerOf(ctx)
	if err != nil {
		return nil, err
	}
	at, err := parseAddress("poll", in.Poll)
	if err != nil {
		return nil, err
	}
	if in.OptionIndex > math.MaxUint8 {
		return nil, ledgerStatus(ledger.ErrInvalidOptionIndex)
	}

	record, err := v.ledger.CastVote(ctx, caller, at, uint8(in.OptionIndex))
	if err != nil {
		return nil, ledgerStatus(err)
	}
	return &record, nil
}

func (v *App) ClosePoll(ctx context.Context, in *PollRequest) (*models.Poll, error) {
	caller, err := v.callerOf(ctx)
	if err != nil {
		return nil, err
	}
	at, err := parseAddress("poll", in.Poll)
	if err != nil {
		return nil, err
	}

	poll, err := v.ledger.ClosePoll(ctx, caller, at)
	if err != nil {
		return nil, ledgerStatus(err)
	}
	return &poll, nil
}

func (v *App) GetPoll(ctx context.Context, in *PollRequest) (*models.Poll, error) {
	at, err := parseAddress("poll", in.Poll)
	if err != nil {
		return nil, err
	}

	poll, err := v.ledger.GetPoll(ctx, at)
	if err != nil {
		return nil, ledgerStatus(err)
	}
	return &poll, nil
}

func (v *App) GetVoterRecord(ctx context.Context, in *GetVoterRecordRequest) (*models.VoterRecord, error) {
	at, err := parseAddress("poll", in.Poll)
	if err != nil {
		return nil, err
	}
	voter, err := parseAddress("voter", in.Voter)
	if err != nil {
		return nil, err
	}

	record, err := v.ledger.GetVoterRecord(ctx, voter, at)
	if err != nil {
		return nil, ledgerStatus(err)
	}
	return &record, nil
}

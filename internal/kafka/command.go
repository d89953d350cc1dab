package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/contest-leaderboard/internal/domain"
)

// CommandType names a command carried on the command topic
type CommandType string

const (
	CommandCreateContest       CommandType = "create_contest"
	CommandJoinContest         CommandType = "join_contest"
	CommandLeaveContest        CommandType = "leave_contest"
	CommandStartContest        CommandType = "start_contest"
	CommandEndContest          CommandType = "end_contest"
	CommandActivateLeaderboard CommandType = "activate_leaderboard"
	CommandLinkHandle          CommandType = "link_handle"
)

// Envelope is the wire form of a command
type Envelope struct {
	Type      CommandType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Command is one of the command payload types declared in this file
type Command interface {
	Type() CommandType
	// Key is the partition key; commands on the same contest share a partition.
	Key() string
}

type CreateContest struct {
	domain.CreateContestRequest
}

type JoinContest struct {
	ContestID int64  `json:"contest_id"`
	UserID    string `json:"user_id"`
}

type LeaveContest struct {
	ContestID int64  `json:"contest_id"`
	UserID    string `json:"user_id"`
}

type StartContest struct {
	ContestID int64 `json:"contest_id"`
}

type EndContest struct {
	ContestID int64 `json:"contest_id"`
}

type ActivateLeaderboard struct {
	ContestID int64  `json:"contest_id"`
	ChannelID string `json:"channel_id"`
}

type LinkHandle struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
}

func (CreateContest) Type() CommandType       { return CommandCreateContest }
func (JoinContest) Type() CommandType         { return CommandJoinContest }
func (LeaveContest) Type() CommandType        { return CommandLeaveContest }
func (StartContest) Type() CommandType        { return CommandStartContest }
func (EndContest) Type() CommandType          { return CommandEndContest }
func (ActivateLeaderboard) Type() CommandType { return CommandActivateLeaderboard }
func (LinkHandle) Type() CommandType          { return CommandLinkHandle }

func contestKey(id int64) string { return "contest-" + strconv.FormatInt(id, 10) }

func (c CreateContest) Key() string       { return "create-" + c.CreatedBy }
func (c JoinContest) Key() string         { return contestKey(c.ContestID) }
func (c LeaveContest) Key() string        { return contestKey(c.ContestID) }
func (c StartContest) Key() string        { return contestKey(c.ContestID) }
func (c EndContest) Key() string          { return contestKey(c.ContestID) }
func (c ActivateLeaderboard) Key() string { return contestKey(c.ContestID) }
func (c LinkHandle) Key() string          { return "user-" + c.UserID }

// Encode wraps a command in an envelope
func Encode(requestID string, cmd Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", cmd.Type(), err)
	}
	return json.Marshal(Envelope{Type: cmd.Type(), RequestID: requestID, Payload: payload})
}

// Decode parses an envelope and its typed payload
func Decode(data []byte) (string, Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: malformed envelope: %v", domain.ErrInvalidRequest, err)
	}

	var cmd Command
	switch env.Type {
	case CommandCreateContest:
		cmd = &CreateContest{}
	case CommandJoinContest:
		cmd = &JoinContest{}
	case CommandLeaveContest:
		cmd = &LeaveContest{}
	case CommandStartContest:
		cmd = &StartContest{}
	case CommandEndContest:
		cmd = &EndContest{}
	case CommandActivateLeaderboard:
		cmd = &ActivateLeaderboard{}
	case CommandLinkHandle:
		cmd = &LinkHandle{}
	default:
		return env.RequestID, nil, fmt.Errorf("%w: unknown command type %q", domain.ErrInvalidRequest, env.Type)
	}

	if len(env.Payload) == 0 {
		return env.RequestID, nil, fmt.Errorf("%w: %s has no payload", domain.ErrInvalidRequest, env.Type)
	}
	if err := json.Unmarshal(env.Payload, cmd); err != nil {
		return env.RequestID, nil, fmt.Errorf("%w: malformed %s payload: %v", domain.ErrInvalidRequest, env.Type, err)
	}
	return env.RequestID, deref(cmd), nil
}

func deref(cmd Command) Command {
	switch c := cmd.(type) {
	case *CreateContest:
		return *c
	case *JoinContest:
		return *c
	case *LeaveContest:
		return *c
	case *StartContest:
		return *c
	case *EndContest:
		return *c
	case *ActivateLeaderboard:
		return *c
	case *LinkHandle:
		return *c
	}
	return cmd
}

// Engine runs contest commands
type Engine interface {
	CreateContest(ctx context.Context, req domain.CreateContestRequest) (int64, error)
	JoinContest(ctx context.Context, contestID int64, userID string) error
	LeaveContest(ctx context.Context, contestID int64, userID string) error
	StartContest(ctx context.Context, contestID int64) (*domain.Contest, error)
	EndContest(ctx context.Context, contestID int64) ([]domain.Standing, error)
	ActivateLeaderboard(ctx context.Context, contestID int64, channelID string) (domain.SurfaceRef, error)
	LinkHandle(ctx context.Context, userID, handle string) error
}

// Dispatch runs cmd on the engine and returns its result
func Dispatch(ctx context.Context, engine Engine, cmd Command) (any, error) {
	switch c := cmd.(type) {
	case CreateContest:
		id, err := engine.CreateContest(ctx, c.CreateContestRequest)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"contest_id": id}, nil
	case JoinContest:
		return nil, engine.JoinContest(ctx, c.ContestID, c.UserID)
	case LeaveContest:
		return nil, engine.LeaveContest(ctx, c.ContestID, c.UserID)
	case StartContest:
		return engine.StartContest(ctx, c.ContestID)
	case EndContest:
		return engine.EndContest(ctx, c.ContestID)
	case ActivateLeaderboard:
		return engine.ActivateLeaderboard(ctx, c.ContestID, c.ChannelID)
	case LinkHandle:
		return nil, engine.LinkHandle(ctx, c.UserID, c.Handle)
	default:
		return nil, fmt.Errorf("%w: unsupported command %T", domain.ErrInvalidRequest, cmd)
	}
}

// internal/common/camunda/camundatest/jobclient.go

// Package camundatest provides a worker.JobClient that records the commands a
// handler sends instead of talking to a gateway.
package camundatest

import (
	"context"
	"sync"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"google.golang.org/grpc"
)

// Sent is one command as the gateway saw it.
type Sent struct {
	JobKey    int64
	Variables string
	ErrorCode string
	Retries   int32
	// CtxErr is the state of the send context when the command arrived.
	CtxErr error
}

// JobClient implements worker.JobClient on top of a recording gateway.
type JobClient struct {
	gw *gateway
}

func NewJobClient() *JobClient {
	return &JobClient{gw: &gateway{}}
}

func (c *JobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gw, noRetry)
}

func (c *JobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gw, noRetry)
}

func (c *JobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gw, noRetry)
}

func (c *JobClient) Completed() []Sent { return c.gw.snapshot(&c.gw.completed) }
func (c *JobClient) Failed() []Sent    { return c.gw.snapshot(&c.gw.failed) }
func (c *JobClient) Thrown() []Sent    { return c.gw.snapshot(&c.gw.thrown) }

func noRetry(context.Context, error) bool { return false }

// gateway answers the three job commands; any other call panics on the nil
// embedded client.
type gateway struct {
	pb.GatewayClient

	mu        sync.Mutex
	completed []Sent
	failed    []Sent
	thrown    []Sent
}

func (g *gateway) record(list *[]Sent, s Sent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	*list = append(*list, s)
	return s.CtxErr
}

func (g *gateway) snapshot(list *[]Sent) []Sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Sent(nil), *list...)
}

func (g *gateway) CompleteJob(ctx context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	err := g.record(&g.completed, Sent{JobKey: in.JobKey, Variables: in.Variables, CtxErr: ctx.Err()})
	if err != nil {
		return nil, err
	}
	return &pb.CompleteJobResponse{}, nil
}

func (g *gateway) FailJob(ctx context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	err := g.record(&g.failed, Sent{JobKey: in.JobKey, Variables: in.Variables, Retries: in.Retries, CtxErr: ctx.Err()})
	if err != nil {
		return nil, err
	}
	return &pb.FailJobResponse{}, nil
}

func (g *gateway) ThrowError(ctx context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	err := g.record(&g.thrown, Sent{JobKey: in.JobKey, Variables: in.Variables, ErrorCode: in.ErrorCode, CtxErr: ctx.Err()})
	if err != nil {
		return nil, err
	}
	return &pb.ThrowErrorResponse{}, nil
}

package eventsourcing

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// queuedCommand represents a command enqueued in the command bus for processing.
type queuedCommand struct {
	Ctx        context.Context
	Command    Command
	ResponseCh chan<- commandResult
}

type commandResult struct {
	Result AppendResult
	Err    error
}

// CommandBus is an in-memory, type-safe command dispatcher.
//
// Commands are routed to a shard by aggregate id and each shard is worked by a
// single goroutine, so commands for one aggregate run one after the other and
// do not race each other for the next version. Commands for different
// aggregates run in parallel across shards.
type CommandBus struct {
	handlers map[string]func(ctx context.Context, command Command) (AppendResult, error)
	queues   []chan queuedCommand
	stopCh   chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup
	workers  sync.WaitGroup
	mu       sync.RWMutex
}

// NewCommandBus starts shardCount workers, each with a queue of bufferSize.
//
// Example:
//
//	bus := NewCommandBus(64, 4)
//	defer bus.Stop()
func NewCommandBus(bufferSize int, shardCount int) *CommandBus {
	if shardCount <= 0 {
		shardCount = 1
	}

	bus := &CommandBus{
		queues:   make([]chan queuedCommand, shardCount),
		handlers: make(map[string]func(ctx context.Context, command Command) (AppendResult, error)),
		stopCh:   make(chan struct{}),
	}

	for i := range bus.queues {
		bus.queues[i] = make(chan queuedCommand, bufferSize)
		bus.workers.Add(1)
		go bus.worker(bus.queues[i])
	}

	return bus
}

// Dispatch enqueues a command for processing by the registered handler and
// waits for the result. It is safe to call concurrently.
func (b *CommandBus) Dispatch(ctx context.Context, cmd Command) (AppendResult, error) {
	b.mu.RLock()
	select {
	case <-b.stopCh:
		b.mu.RUnlock()
		return AppendResult{}, ErrCommandBusStopped
	default:
	}
	b.inflight.Add(1)
	b.mu.RUnlock()
	defer b.inflight.Done()

	responseCh := make(chan commandResult, 1)
	queue := b.queues[b.shard(cmd.AggregateID())]

	select {
	case queue <- queuedCommand{Ctx: ctx, Command: cmd, ResponseCh: responseCh}:
		select {
		case result := <-responseCh:
			return result.Result, result.Err
		case <-ctx.Done():
			return AppendResult{}, ctx.Err()
		}
	case <-ctx.Done():
		return AppendResult{}, ctx.Err()
	}
}

// worker processes commands from a single shard queue.
func (b *CommandBus) worker(queue chan queuedCommand) {
	defer b.workers.Done()
	for cmd := range queue {
		cmd.ResponseCh <- b.handle(cmd)
	}
}

func (b *CommandBus) handle(cmd queuedCommand) (res commandResult) {
	if err := cmd.Ctx.Err(); err != nil {
		return commandResult{Err: err}
	}

	cmdName := fmt.Sprintf("%T", cmd.Command)
	b.mu.RLock()
	h, exists := b.handlers[cmdName]
	b.mu.RUnlock()
	if !exists {
		return commandResult{Err: fmt.Errorf("no handler for command %s", cmdName)}
	}

	defer func() {
		if r := recover(); r != nil {
			res = commandResult{Err: fmt.Errorf("panic in handler for %s: %v", cmdName, r)}
		}
	}()
	result, err := h(cmd.Ctx, cmd.Command)
	return commandResult{Result: result, Err: err}
}

func (b *CommandBus) shard(aggregateID string) int {
	hash := fnv.New32a()
	hash.Write([]byte(aggregateID))
	return int(hash.Sum32() % uint32(len(b.queues)))
}

// Register adds a typed command handler to the bus. It panics if a handler
// is already registered for the same command type.
//
// Example:
//
//	Register(bus, addMemberHandler)
func Register[C Command](b *CommandBus, handler CommandHandler[C]) {
	var zero C
	cmdName := fmt.Sprintf("%T", zero)
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[cmdName]; exists {
		panic(fmt.Sprintf("handler already registered for command type %s", cmdName))
	}

	b.handlers[cmdName] = func(ctx context.Context, cmd Command) (AppendResult, error) {
		c, ok := cmd.(C)
		if !ok {
			return AppendResult{}, fmt.Errorf("expected command type %s but got %T", cmdName, cmd)
		}
		return handler(ctx, c)
	}
}

// Stop stops accepting commands, waits for dispatched commands to finish and
// shuts the workers down. It is safe to call more than once.
func (b *CommandBus) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		close(b.stopCh)
		b.mu.Unlock()

		b.inflight.Wait()
		for _, q := range b.queues {
			close(q)
		}
		b.workers.Wait()
	})
}

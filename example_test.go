package codepass_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrEthical07/codepass"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// ExampleNew wires an engine against a Redis deployment and a registrant
// directory.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := codepass.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("replace-with-32-bytes-of-secret!")

	engine, err := codepass.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(newExampleDirectory()).
		Build()
	if err != nil {
		return
	}
	defer engine.Close()
}

// ExampleEngine_IssueCode shows the full code lifecycle: issue, redeem once,
// and the uniform failure on replay.
func ExampleEngine_IssueCode() {
	mr, _ := miniredis.Run()
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := codepass.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	engine, err := codepass.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(newExampleDirectory()).
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer engine.Close()

	ctx := context.Background()
	desc, err := engine.IssueCode(ctx, codepass.CodePayload{Guardians: 2, Visitors: 1})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(len(desc.Code))

	res, err := engine.Verify(ctx, desc.Code)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(res.Matched, res.Payload.Guardians, res.Tokens.AccessToken != "")

	_, err = engine.Verify(ctx, desc.Code)
	fmt.Println(err)
	// Output:
	// 6
	// true 2 true
	// invalid verification code
}

// ExampleEngine_MetricsSnapshot reads in-process counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *codepass.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot.Counters
}

type exampleDirectory struct {
	mu  sync.Mutex
	ids map[string]codepass.Registrant
}

func newExampleDirectory() *exampleDirectory {
	return &exampleDirectory{ids: map[string]codepass.Registrant{}}
}

func (d *exampleDirectory) RegistrantExists(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.ids[id]
	return ok, nil
}

func (d *exampleDirectory) CreateRegistrant(_ context.Context, r codepass.Registrant) (codepass.Registrant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[r.RandomID] = r
	return r, nil
}

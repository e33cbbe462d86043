package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/peterh/liner"
)

// Challenge は手動解決を待っているチャレンジの情報。
type Challenge struct {
	URL      string
	Selector string
}

// ChallengeResolver は対話モードでチャレンジの手動解決を待つ。
// 解決されたらnilを返し、ctxが終了したらそのエラーを返す。
// nilのResolverは非対話モード（チャレンジ検出で即Blocked）を意味する。
type ChallengeResolver interface {
	Resolve(ctx context.Context, c Challenge) error
}

// SignalResolver は外部からの「解決済み」シグナルで再開するResolver。
// HTTPの /api/challenge/resolve やテストからSignalを呼ぶ。
type SignalResolver struct {
	mu      sync.Mutex
	pending *Challenge
	ch      chan struct{}
}

// NewSignalResolver はSignalResolverを生成する。
func NewSignalResolver() *SignalResolver {
	return &SignalResolver{ch: make(chan struct{}, 1)}
}

// Resolve はSignalが呼ばれるまで待機する。
func (r *SignalResolver) Resolve(ctx context.Context, c Challenge) error {
	r.mu.Lock()
	// 前回の待機に届かなかったシグナルは捨てる
	select {
	case <-r.ch:
	default:
	}
	r.pending = &c
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.pending = nil
		r.mu.Unlock()
	}()

	select {
	case <-r.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Signal は待機中のチャレンジを解決済みにする。待機中でなければfalseを返す。
func (r *SignalResolver) Signal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return false
	}
	select {
	case r.ch <- struct{}{}:
	default:
	}
	return true
}

// Pending は待機中のチャレンジを返す。
func (r *SignalResolver) Pending() (Challenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return Challenge{}, false
	}
	return *r.pending, true
}

// PromptResolver は端末でEnterの入力を待つResolver。CLIの check/create で使う。
type PromptResolver struct {
	prompt func(string) (string, error)
}

// NewPromptResolver はlinerを使うPromptResolverを生成する。
func NewPromptResolver() *PromptResolver {
	return &PromptResolver{prompt: linerPrompt}
}

func linerPrompt(text string) (string, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	return line.Prompt(text)
}

// Resolve は操作者がEnterを押すまで待機する。Ctrl+Cで中断できる。
func (r *PromptResolver) Resolve(ctx context.Context, c Challenge) error {
	done := make(chan error, 1)
	go func() {
		_, err := r.prompt(fmt.Sprintf("ブラウザでチャレンジを解決してEnterを押してください (%s): ", c.URL))
		done <- err
	}()

	select {
	case err := <-done:
		if errors.Is(err, liner.ErrPromptAborted) {
			return fmt.Errorf("challenge prompt aborted: %w", err)
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

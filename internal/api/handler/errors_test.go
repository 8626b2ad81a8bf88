package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"smart-ats/internal/gateway"
	"smart-ats/internal/parser"
	"smart-ats/internal/processor"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"input error", &processor.InputError{Op: "analyze", BaseErr: processor.ErrEmptyText}, 400},
		{"unknown provider", &gateway.ProviderError{BaseErr: gateway.ErrUnknownProvider}, 400},
		{"not configured", &gateway.ProviderError{BaseErr: gateway.ErrProviderNotConfigured}, 400},
		{"transport", &gateway.ProviderError{BaseErr: gateway.ErrTransport}, 502},
		{"provider timeout", &gateway.ProviderError{BaseErr: gateway.ErrProviderTimeout}, 504},
		{"parse error", fmt.Errorf("wrapped: %w", &parser.ParseError{Stage: parser.StageATS, Err: errors.New("bad")}), 502},
		{"pipeline deadline", fmt.Errorf("解析简历失败: %w", context.DeadlineExceeded), 504},
		{"other", errors.New("disk on fire"), 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}

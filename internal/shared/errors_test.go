package shared

import (
	"context"
	"fmt"
	"testing"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "reauth", err: fmt.Errorf("%w: revoked", ErrReauthRequired), want: true},
		{name: "rate limit", err: fmt.Errorf("add tracks: %w", ErrRateLimitExceeded), want: true},
		{name: "storage", err: ErrStorageIO, want: true},
		{name: "per item api error", err: fmt.Errorf("%w: status 403", ErrAPIRequest), want: false},
		{name: "cancelled", err: context.Canceled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

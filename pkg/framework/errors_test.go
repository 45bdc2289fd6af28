package framework

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	base := E(KindValidation, "amplitude", errors.New("channel 3 high"))
	wrapped := fmt.Errorf("signal check: %w", base)

	require.Equal(t, KindValidation, KindOf(base))
	require.Equal(t, KindValidation, KindOf(wrapped))
	require.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	require.Equal(t, KindUnknown, KindOf(nil))
	require.False(t, IsKind(nil, KindUnknown))
	require.Equal(t, "amplitude: channel 3 high", base.Error())
	require.Equal(t, "validation", KindValidation.String())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, nil).Aggregate())

	errs.Add(errors.New("close failed"))
	require.Equal(t, "close failed", errs.Aggregate().Error())

	errs.Add(nil, errors.New("flush failed"))
	require.Equal(t, "Multiple errors:\nclose failed\nflush failed", errs.Aggregate().Error())
}

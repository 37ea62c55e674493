package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/firstnattapon/24wash-backend/types"
	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.IsTest = true
}

func slipCommand() types.CommandRecord {
	amount := decimal.NewFromInt(20)
	return types.CommandRecord{
		ID:        "cmd-1",
		Status:    types.CommandStatusWork,
		Method:    types.MethodSlip,
		Amount:    &amount,
		TransRef:  "T1",
		Timestamp: 1700000000000,
	}
}

func TestDispatch_AppendsToChannelList(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(db, 5*time.Second)

	cmd := slipCommand()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)

	mock.ExpectRPush("commands:20/payment_commands", data).SetVal(1)

	err = q.Dispatch(context.Background(), cmd, "20/payment_commands")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatch_WriteFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(db, 5*time.Second)

	cmd := slipCommand()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)

	mock.ExpectRPush("commands:payment_commands", data).SetErr(errors.New("connection reset"))

	err = q.Dispatch(context.Background(), cmd, "payment_commands")
	assert.Error(t, err)
}

func TestDispatch_EmptyChannelRejected(t *testing.T) {
	db, _ := redismock.NewClientMock()
	q := NewRedisQueue(db, 5*time.Second)

	err := q.Dispatch(context.Background(), slipCommand(), "")
	assert.Error(t, err)
}

func TestDispatch_WireShape(t *testing.T) {
	// The machine controller consumes these fields as written by the
	// original system; the wire names must not drift.
	cmd := types.NewCouponCommand("12345", "1")
	cmd.ID = "cmd-2"

	data, err := json.Marshal(cmd)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "work", m["status"])
	assert.Equal(t, "coupon", m["method"])
	assert.Equal(t, "12345", m["code"])
	assert.Equal(t, "1", m["selected_machine"])
	assert.Contains(t, m["transRef"], "coupon-12345-")
	assert.NotContains(t, m, "amount")

	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(db, 5*time.Second)
	mock.ExpectRPush("commands:20/payment_commands", data).SetVal(2)
	require.NoError(t, q.Dispatch(context.Background(), cmd, "20/payment_commands"))
}

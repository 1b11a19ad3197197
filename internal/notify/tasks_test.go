package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/notify"
)

type captureSender struct {
	to   []string
	body []string
	err  error
}

func (c *captureSender) SendText(_ context.Context, to, body string) error {
	c.to = append(c.to, to)
	c.body = append(c.body, body)
	return c.err
}

func billTask(t *testing.T, taskType string, p notify.BillPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask(taskType, data)
}

func TestHandleBillCreated(t *testing.T) {
	sender := &captureSender{}
	h := &notify.Handler{Sender: sender, Log: zerolog.Nop()}

	task := billTask(t, notify.TaskBillCreated, notify.BillPayload{
		TenantID:      "t1",
		InvoiceNumber: "INV-20260830-00007",
		CustomerName:  "Asha",
		CustomerPhone: "+919800000001",
		GrandTotal:    2714,
		Balance:       714,
	})
	require.NoError(t, h.HandleBill(context.Background(), task))
	require.Len(t, sender.to, 1)
	assert.Equal(t, "+919800000001", sender.to[0])
	assert.Contains(t, sender.body[0], "INV-20260830-00007")
	assert.Contains(t, sender.body[0], "INR 714.00")
}

func TestHandleBillSkipsWithoutPhone(t *testing.T) {
	sender := &captureSender{}
	h := &notify.Handler{Sender: sender, Log: zerolog.Nop()}

	task := billTask(t, notify.TaskBillPaid, notify.BillPayload{CustomerName: "Walk-in"})
	require.NoError(t, h.HandleBill(context.Background(), task))
	assert.Empty(t, sender.to)
}

func TestHandleBillPropagatesSendError(t *testing.T) {
	sender := &captureSender{err: errors.New("gateway down")}
	h := &notify.Handler{Sender: sender, Log: zerolog.Nop()}

	task := billTask(t, notify.TaskBillDelivered, notify.BillPayload{
		CustomerPhone: "+919800000002",
	})
	require.Error(t, h.HandleBill(context.Background(), task))
}

func TestHandleStockLow(t *testing.T) {
	sender := &captureSender{}
	h := &notify.Handler{Sender: sender, Log: zerolog.Nop()}

	task, err := notify.NewStockLowTask(notify.StockLowPayload{
		TenantID:    "t1",
		ProductName: "Dawn Soap 100g",
		Warehouse:   "Main Godown",
		Remaining:   17,
		AlertPhone:  "+919800000003",
	})
	require.NoError(t, err)
	require.NoError(t, h.HandleStockLow(context.Background(), task))
	require.Len(t, sender.body, 1)
	assert.Contains(t, sender.body[0], "Dawn Soap 100g")
	assert.Contains(t, sender.body[0], "17")
}

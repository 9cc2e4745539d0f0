package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscriberStatus(t *testing.T) {
	tests := []struct {
		in   string
		want SubscriberStatus
	}{
		{"subscribed", StatusSubscribed},
		{"NOT_ACTIVE", StatusNotActive},
		{" unsubscribed ", StatusUnsubscribed},
		{"Unconfirmed", StatusUnconfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSubscriberStatus(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseSubscriberStatus("pending")
	assert.Error(t, err)
}

func TestSubscriberStatus_Codes(t *testing.T) {
	assert.Equal(t, 1, int(StatusSubscribed))
	assert.Equal(t, 2, int(StatusNotActive))
	assert.Equal(t, 3, int(StatusUnsubscribed))
	assert.Equal(t, 4, int(StatusUnconfirmed))
	assert.False(t, SubscriberStatus(0).Valid())
	assert.Equal(t, "status(9)", SubscriberStatus(9).String())
}

func TestSubscriber_JSON(t *testing.T) {
	s := Subscriber{
		ID:               "sub-1",
		Email:            "a@x.com",
		Status:           StatusUnconfirmed,
		ConfirmationCode: "secret",
		StoreID:          1,
		StatusChanged:    true,
	}
	b, err := json.Marshal(s)
	require.NoError(t, err)

	body := string(b)
	assert.Contains(t, body, `"status":"unconfirmed"`)
	assert.NotContains(t, body, "secret")
	assert.NotContains(t, body, "StatusChanged")

	var back Subscriber
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, StatusUnconfirmed, back.Status)

	_, err = json.Marshal(Subscriber{Status: 7})
	assert.Error(t, err)
}

func TestSubscriber_PersistedAndClone(t *testing.T) {
	var nilSub *Subscriber
	assert.False(t, nilSub.Persisted())
	assert.Nil(t, nilSub.Clone())
	assert.False(t, (&Subscriber{}).Persisted())

	s := &Subscriber{ID: "sub-1", Status: StatusSubscribed}
	assert.True(t, s.Persisted())
	assert.True(t, s.Anonymous())

	c := s.Clone()
	c.Status = StatusUnsubscribed
	c.CustomerID = 42
	assert.Equal(t, StatusSubscribed, s.Status)
	assert.True(t, s.Anonymous())
	assert.False(t, c.Anonymous())
}

func TestNotificationKind_Valid(t *testing.T) {
	assert.True(t, NotificationConfirmationRequest.Valid())
	assert.True(t, NotificationConfirmationSuccess.Valid())
	assert.True(t, NotificationUnsubscription.Valid())
	assert.False(t, NotificationNone.Valid())
	assert.False(t, NotificationKind("welcome").Valid())
}

package amqp

import (
	"encoding/json"
	"time"
)

// BillingEventMessage carries a provider-neutral subscription change.
type BillingEventMessage struct {
	Type             string     `json:"type"`
	UserID           string     `json:"userId"`
	Status           string     `json:"status,omitempty"`
	TrialEnd         *time.Time `json:"trialEnd,omitempty"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

// SnapshotChangedMessage announces a new snapshot version. Consumers load
// the snapshot from storage; the message only says which one to read.
type SnapshotChangedMessage struct {
	UserID    string    `json:"userId"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSnapshotChangedMessage(userID string, version uint64) *SnapshotChangedMessage {
	return &SnapshotChangedMessage{UserID: userID, Version: version, Timestamp: time.Now()}
}

func (m *BillingEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *SnapshotChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BillingEventMessageFromJSON(data []byte) (*BillingEventMessage, error) {
	var msg BillingEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" || msg.UserID == "" {
		return nil, errMissingFields
	}
	return &msg, nil
}

func SnapshotChangedMessageFromJSON(data []byte) (*SnapshotChangedMessage, error) {
	var msg SnapshotChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errMissingFields
	}
	return &msg, nil
}

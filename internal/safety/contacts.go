package safety

import (
	"context"
	"strings"

	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/httpclient"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/session"
	"go.uber.org/zap"
)

const (
	usersPath       = "/users/get-users"
	sendMessagePath = "/emergency/send-message"
)

// Contacts reads the user's emergency contacts and messages them directly.
type Contacts struct {
	client *httpclient.Client
}

// NewContacts creates a contacts client.
func NewContacts(client *httpclient.Client) *Contacts {
	return &Contacts{client: client}
}

type userDetailsResponse struct {
	EmergencyContacts []EmergencyContact `json:"emergency_contacts"`
}

type sendMessageRequest struct {
	UserID    string `json:"user_id"`
	ContactID string `json:"contact_id"`
	Message   string `json:"message"`
}

// List returns the session user's emergency contacts.
func (c *Contacts) List(ctx context.Context, sess session.Session) ([]EmergencyContact, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}

	var resp userDetailsResponse
	if err := c.client.GetJSON(ctx, usersPath, sess.Credential, &resp); err != nil {
		return nil, err
	}
	if resp.EmergencyContacts == nil {
		return []EmergencyContact{}, nil
	}
	return resp.EmergencyContacts, nil
}

// SendMessage delivers message to one contact.
func (c *Contacts) SendMessage(ctx context.Context, sess session.Session, contactID, message string) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	contactID = strings.TrimSpace(contactID)
	message = strings.TrimSpace(message)
	if contactID == "" {
		return common.NewValidationError("contact id is required")
	}
	if message == "" {
		return common.NewValidationError("message is required")
	}

	req := sendMessageRequest{UserID: sess.UserID, ContactID: contactID, Message: message}
	if err := c.client.PostJSON(ctx, sendMessagePath, sess.Credential, req, nil); err != nil {
		logger.WarnContext(ctx, "emergency message failed", zap.String("contact_id", contactID), zap.Error(err))
		return err
	}

	logger.InfoContext(ctx, "emergency message sent", zap.String("contact_id", contactID))
	return nil
}

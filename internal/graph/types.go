package graph

import (
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// graphEmailAddress is the nested name/address pair used by Graph
// recipients.
type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// graphRecipient wraps an email address in the Graph envelope shape.
type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

// graphMessage is the wire shape of a message header as returned by
// /me/messages and /me/messages/delta.
type graphMessage struct {
	ID               string           `json:"id"`
	ConversationID   string           `json:"conversationId"`
	Subject          string           `json:"subject"`
	From             *graphRecipient  `json:"from"`
	ToRecipients     []graphRecipient `json:"toRecipients"`
	CcRecipients     []graphRecipient `json:"ccRecipients"`
	ReceivedDateTime string           `json:"receivedDateTime"`
	Importance       string           `json:"importance"`
	IsRead           bool             `json:"isRead"`
	HasAttachments   bool             `json:"hasAttachments"`
	BodyPreview      string           `json:"bodyPreview"`
	ParentFolderID   string           `json:"parentFolderId"`
	Categories       []string         `json:"categories"`

	// Removed is present on delta tombstones only.
	Removed *struct {
		Reason string `json:"reason"`
	} `json:"@removed"`
}

// graphFolder is the wire shape of a mail folder.
type graphFolder struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	ParentFolderID string `json:"parentFolderId"`
	ChildCount     int    `json:"childFolderCount"`
	UnreadCount    int    `json:"unreadItemCount"`
}

// graphBody is the wire shape of a message body.
type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// messagePage is one page of a paginated /me/messages response.
type messagePage struct {
	Value     []graphMessage `json:"value"`
	NextLink  string         `json:"@odata.nextLink"`
	DeltaLink string         `json:"@odata.deltaLink"`
}

// folderPage is one page of a paginated /me/mailFolders response.
type folderPage struct {
	Value    []graphFolder `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

// graphErrorBody is the standard Graph error envelope.
type graphErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Change is a single row from a delta batch: either an updated message
// header or a tombstone for a deleted one.
type Change struct {
	Message model.Message
	Removed bool
}

// toMessage converts a wire message to the domain model. A missing or
// unparsable receivedDateTime leaves ReceivedAt zero; the orchestrator
// skips such rows.
func toMessage(gm graphMessage) model.Message {
	msg := model.Message{
		ID:             gm.ID,
		ConversationID: gm.ConversationID,
		Subject:        gm.Subject,
		Importance:     model.ParseImportance(gm.Importance),
		IsRead:         gm.IsRead,
		HasAttachments: gm.HasAttachments,
		BodyPreview:    gm.BodyPreview,
		ParentFolderID: gm.ParentFolderID,
		Categories:     gm.Categories,
	}

	// Delivery-failure reports can arrive with no from address; surface
	// an empty string rather than failing the row.
	if gm.From != nil {
		msg.FromEmail = gm.From.EmailAddress.Address
		msg.FromName = gm.From.EmailAddress.Name
	}

	for _, r := range gm.ToRecipients {
		msg.To = append(msg.To, model.Recipient{
			Name:  r.EmailAddress.Name,
			Email: r.EmailAddress.Address,
		})
	}
	for _, r := range gm.CcRecipients {
		msg.CC = append(msg.CC, model.Recipient{
			Name:  r.EmailAddress.Name,
			Email: r.EmailAddress.Address,
		})
	}

	if gm.ReceivedDateTime != "" {
		if t, err := time.Parse(time.RFC3339, gm.ReceivedDateTime); err == nil {
			msg.ReceivedAt = t
		}
	}

	return msg
}

// toFolder converts a wire folder to the domain model.
func toFolder(gf graphFolder) model.Folder {
	return model.Folder{
		ID:          gf.ID,
		DisplayName: gf.DisplayName,
		ParentID:    gf.ParentFolderID,
		ChildCount:  gf.ChildCount,
		UnreadCount: gf.UnreadCount,
	}
}

package worker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"reachly/models"
	"reachly/orchestrator"
)

// ReplyWorker polls tenant mailboxes over IMAP for replies the providers
// miss. Each detected reply becomes an engagement event, deduplicated by
// mailbox and message UID, and is fed into the state machine.
type ReplyWorker struct {
	Store   *models.Store
	Machine *orchestrator.Machine
	Logger  *log.Logger

	// Decrypt resolves the stored IMAP password
	Decrypt func(ciphertext string) (string, error)

	PollInterval time.Duration
}

func NewReplyWorker(store *models.Store, machine *orchestrator.Machine, decrypt func(string) (string, error), logger *log.Logger) *ReplyWorker {
	return &ReplyWorker{
		Store:        store,
		Machine:      machine,
		Logger:       logger,
		Decrypt:      decrypt,
		PollInterval: 2 * time.Minute,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	rw.Logger.Println("REPLY: worker started")

	ticker := time.NewTicker(rw.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Println("REPLY: worker shutting down...")
			return
		case <-ticker.C:
			rw.pollMailboxes(ctx)
		}
	}
}

func (rw *ReplyWorker) pollMailboxes(ctx context.Context) {
	boxes, err := rw.Store.ListMailboxes(ctx)
	if err != nil {
		rw.Logger.Printf("REPLY: failed to list mailboxes: %v", err)
		return
	}

	for i := range boxes {
		if ctx.Err() != nil {
			return
		}
		box := &boxes[i]
		if err := rw.pollMailbox(ctx, box); err != nil {
			rw.Logger.Printf("REPLY: mailbox %s failed: %v", box.Email, err)
			box.ConsecutiveErrors++
			if box.ConsecutiveErrors >= 10 {
				box.PollingEnabled = false
				rw.Logger.Printf("REPLY: disabling mailbox %s after repeated failures", box.Email)
			}
		} else {
			box.ConsecutiveErrors = 0
		}
		now := time.Now()
		box.LastPolledAt = &now
		if err := rw.Store.SaveMailbox(ctx, box); err != nil {
			rw.Logger.Printf("REPLY: failed to save mailbox %s: %v", box.Email, err)
		}
	}
}

func (rw *ReplyWorker) pollMailbox(ctx context.Context, box *models.Mailbox) error {
	password, err := rw.Decrypt(box.IMAPPasswordEnc)
	if err != nil {
		return fmt.Errorf("failed to decrypt IMAP password: %v", err)
	}

	imapAddr := fmt.Sprintf("%s:%d", box.IMAPHost, box.IMAPPort)
	imapClient, err := client.DialTLS(imapAddr, &tls.Config{
		ServerName: box.IMAPHost,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %v", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(box.IMAPUsername, password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %v", err)
	}

	mbox, err := imapClient.Select("INBOX", true)
	if err != nil {
		return fmt.Errorf("failed to select mailbox: %v", err)
	}

	// Only messages newer than the cursor
	if mbox.UidNext <= box.LastSeenUID+1 {
		return nil
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(box.LastSeenUID+1, mbox.UidNext-1)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.UidFetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}, messages)
	}()

	maxUID := box.LastSeenUID
	for msg := range messages {
		if msg.Uid > maxUID {
			maxUID = msg.Uid
		}
		if err := rw.processReply(ctx, box, msg, section); err != nil {
			rw.Logger.Printf("REPLY: failed to process message %d in %s: %v", msg.Uid, box.Email, err)
		}
	}
	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %v", err)
	}

	box.LastSeenUID = maxUID
	return nil
}

func (rw *ReplyWorker) processReply(ctx context.Context, box *models.Mailbox, msg *imap.Message, section *imap.BodySectionName) error {
	if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
		return nil
	}
	from := msg.Envelope.From[0]
	fromAddr := fmt.Sprintf("%s@%s", from.MailboxName, from.HostName)

	// Ignore our own outbound mail landing in the inbox
	if fromAddr == box.Email {
		return nil
	}

	lead, err := rw.Store.FindLeadByEmail(ctx, box.TenantID, fromAddr)
	if err != nil {
		return err
	}
	if lead == nil {
		return nil
	}

	metadata, _ := json.Marshal(map[string]string{
		"subject": msg.Envelope.Subject,
		"from":    fromAddr,
		"snippet": replySnippet(msg.GetBody(section)),
	})
	event := &models.EngagementEvent{
		TenantID:   box.TenantID,
		LeadID:     lead.ID,
		EventUID:   fmt.Sprintf("imap:%d:%d", box.ID, msg.Uid),
		EventType:  models.EventReply,
		Provider:   "imap",
		OccurredAt: msg.Envelope.Date,
		Metadata:   string(metadata),
	}
	inserted, err := rw.Store.InsertEvent(ctx, event)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	rw.Logger.Printf("REPLY: detected reply from %s (lead %d)", fromAddr, lead.ID)
	if err := rw.Machine.ProcessEvent(ctx, event); err != nil {
		rw.Logger.Printf("REPLY: failed to apply reply event for lead %d: %v", lead.ID, err)
	}
	return nil
}

// replySnippet extracts the first text part of the message, capped for the
// event metadata
func replySnippet(body io.Reader) string {
	if body == nil {
		return ""
	}
	mr, err := mail.CreateReader(body)
	if err != nil {
		return ""
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}
		if _, ok := part.Header.(*mail.InlineHeader); !ok {
			continue
		}
		raw, err := io.ReadAll(io.LimitReader(part.Body, 500))
		if err != nil {
			return ""
		}
		snippet := strings.TrimSpace(string(raw))
		if snippet != "" {
			return snippet
		}
	}
}

// Package review runs the human review of a low-confidence classification:
// the reviewer picks a code, supplies evidence that raises confidence, and
// finally approves, rejects, cancels or defers the item.
package review

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/tariff/internal/confidence"
	"github.com/Veraticus/tariff/internal/model"
)

// Session errors.
var (
	ErrSessionClosed    = errors.New("review session is closed")
	ErrUnknownCandidate = errors.New("code is not one of the session's candidates")
	ErrEmptyEvidence    = errors.New("evidence is empty")
	ErrNoDocuments      = errors.New("no documents given")
	ErrUnknownEvent     = errors.New("unknown review event")
)

// notesAckLength is the notes length after which the assistant comments once.
const notesAckLength = 50

// Role identifies the author of a chat message.
type Role string

// Chat roles.
const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// ChatMessage is one entry of the review transcript.
type ChatMessage struct {
	At   time.Time
	Role Role
	Text string
}

// Status is the lifecycle state of a review session.
type Status string

// Session statuses.
const (
	StatusOpen      Status = "open"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusDeferred  Status = "deferred"
)

// Event is a reviewer action applied to a session.
type Event interface {
	event()
}

// SelectCandidate chooses a candidate code. It never changes confidence.
type SelectCandidate struct {
	HTS string
}

// SubmitEvidence is free text typed into the review chat.
type SubmitEvidence struct {
	Text string
}

// UploadDocument attaches documents, which resolves every outstanding issue.
type UploadDocument struct {
	Names []string
}

// AddNotes replaces the audit notes. It never changes confidence.
type AddNotes struct {
	Text string
}

func (SelectCandidate) event() {}
func (SubmitEvidence) event()  {}
func (UploadDocument) event()  {}
func (AddNotes) event()        {}

// Session is the state of one review. It is owned by a single reviewer and is
// not safe for concurrent use.
type Session struct {
	OpenedAt   time.Time
	Product    model.Product
	Result     model.ClassificationResult
	ID         string
	UserID     string
	Selected   string
	Notes      string
	Status     Status
	Candidates model.Candidates
	Documents  []string
	Transcript []ChatMessage
	State      confidence.State
	catalog    *confidence.Catalog
	now        func() time.Time
	notesAcked bool
}

// NewSession opens a review of result. Candidates are the primary code followed
// by at most maxAlternatives alternatives.
func NewSession(userID string, product model.Product, result model.ClassificationResult, catalog *confidence.Catalog, maxAlternatives int) *Session {
	if catalog == nil {
		catalog = confidence.DefaultCatalog()
	}
	candidates := model.Candidates{result.PrimaryCandidate()}
	candidates = append(candidates, result.Alternatives.TopN(maxAlternatives)...)

	s := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		Product:    product,
		Result:     result,
		Candidates: candidates,
		Selected:   result.HTSCode,
		Status:     StatusOpen,
		State:      confidence.NewState(result.Confidence),
		catalog:    catalog,
		now:        time.Now,
	}
	s.OpenedAt = s.now()
	s.say(RoleAssistant, fmt.Sprintf(
		"I see you're reviewing %q. I've flagged this with %s confidence because of some ambiguity in the classification. "+
			"Tell me about the product or upload a specification sheet and we can resolve it together.",
		product.DisplayName(), confidence.Percent(result.Confidence)))
	return s
}

// Open reports whether the session still accepts events.
func (s *Session) Open() bool {
	return s.Status == StatusOpen
}

// Tier returns the presentation tier of the current confidence.
func (s *Session) Tier() confidence.Tier {
	return s.State.Tier()
}

// SelectedCandidate returns the currently chosen candidate.
func (s *Session) SelectedCandidate() model.Candidate {
	if i := s.Candidates.Index(s.Selected); i >= 0 {
		return s.Candidates[i]
	}
	return s.Result.PrimaryCandidate()
}

// Apply feeds one reviewer event through the session and returns the messages
// it added to the transcript.
func (s *Session) Apply(ev Event) ([]ChatMessage, error) {
	if !s.Open() {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, s.Status)
	}

	mark := len(s.Transcript)
	var err error
	switch e := ev.(type) {
	case SelectCandidate:
		err = s.selectCandidate(e.HTS)
	case SubmitEvidence:
		err = s.submitEvidence(e.Text)
	case UploadDocument:
		err = s.uploadDocument(e.Names)
	case AddNotes:
		s.addNotes(e.Text)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	if err != nil {
		return nil, err
	}

	added := make([]ChatMessage, len(s.Transcript)-mark)
	copy(added, s.Transcript[mark:])
	return added, nil
}

func (s *Session) selectCandidate(hts string) error {
	idx := s.Candidates.Index(hts)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCandidate, hts)
	}
	if hts == s.Selected {
		return nil
	}
	s.Selected = hts
	s.say(RoleAssistant, selectionReply(s.Result, s.Candidates[idx]))
	return nil
}

func (s *Session) submitEvidence(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyEvidence
	}
	s.say(RoleUser, text)

	if u, ok := s.State.Resolve(s.catalog, s.catalog.Detect(text)); ok && u.Delta() != 0 {
		s.say(RoleAssistant, announce(u))
	}
	s.say(RoleAssistant, cannedReply(text, s))
	return nil
}

func (s *Session) uploadDocument(names []string) error {
	clean := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			clean = append(clean, n)
		}
	}
	if len(clean) == 0 {
		return ErrNoDocuments
	}
	s.Documents = append(s.Documents, clean...)
	list := strings.Join(clean, ", ")
	s.say(RoleUser, "Uploaded "+list)
	s.say(RoleAssistant, fmt.Sprintf("Got it! I'm analyzing %s now.", list))

	u, ok := s.State.Resolve(s.catalog, s.catalog.All())
	if ok && u.Delta() != 0 {
		s.say(RoleAssistant, announce(u))
	}
	s.say(RoleAssistant, documentReply(len(clean), u, ok))
	return nil
}

func (s *Session) addNotes(text string) {
	s.Notes = text
	if len(text) > notesAckLength && !s.notesAcked {
		s.notesAcked = true
		s.say(RoleAssistant, "I see you're adding detailed notes, which is great for the audit trail. "+
			"They will be saved with the product profile and can help when you classify similar items later.")
	}
}

func (s *Session) say(role Role, text string) {
	s.Transcript = append(s.Transcript, ChatMessage{At: s.now(), Role: role, Text: text})
}

// replaceLastReply swaps the text of the final assistant message.
func (s *Session) replaceLastReply(text string) {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleAssistant {
			s.Transcript[i].Text = text
			return
		}
	}
}

func (s *Session) close(status Status) {
	s.Status = status
}

// Package applications is the intake side of submission: it accepts
// complete applications, stores them and announces them downstream.
package applications

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"intake/internal/form"
	"intake/internal/pathway"
)

// EventSubmitted is the event type published for each accepted application.
const EventSubmitted = "application.submitted"

// Application is an accepted submission.
type Application struct {
	Reference    string
	CallerID     string
	ActivityType pathway.ActivityType
	Draft        form.Draft
	DocumentURLs []string
	SubmittedAt  time.Time
}

// Event is the record published when an application is accepted. It carries
// references only; consumers fetch the application itself.
type Event struct {
	Type                 string               `json:"type"`
	ApplicationReference string               `json:"applicationReference"`
	CallerID             string               `json:"callerId"`
	ActivityType         pathway.ActivityType `json:"activityType"`
	DocumentCount        int                  `json:"documentCount"`
	SubmittedAt          time.Time            `json:"submittedAt"`
}

func (a Application) Event() Event {
	return Event{
		Type:                 EventSubmitted,
		ApplicationReference: a.Reference,
		CallerID:             a.CallerID,
		ActivityType:         a.ActivityType,
		DocumentCount:        len(a.DocumentURLs),
		SubmittedAt:          a.SubmittedAt,
	}
}

// NewReference returns a reference such as APP-2026-3F2A9C1B.
func NewReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("APP-%d-%s", now.Year(), suffix)
}

// documentURLs lists the uploaded references in the draft's documents map,
// sorted by document id.
func documentURLs(d form.Draft) []string {
	docs, _ := d.Fields[form.FieldDocuments].(map[string]any)
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, ok := docs[id].(string); ok && strings.TrimSpace(u) != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

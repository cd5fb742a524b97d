package customslack

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"

	"github.com/oriser/tramper/testing/utils"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slacktest"
)

type SlackUser struct {
	Name     string
	Email    string
	Phone    string
	Timezone string
	Deleted  bool
}

type Handlers struct {
	Members      []slack.User
	EmailLookups []string
	membersIDs   map[string]string     // map between full name to ID to avoid adding the same user twice
	membersMap   map[string]slack.User // map between id to slack.User obj
	l            sync.RWMutex
}

func NewHandlers() *Handlers {
	return &Handlers{
		Members:    make([]slack.User, 0),
		membersIDs: make(map[string]string),
		membersMap: make(map[string]slack.User),
	}
}

func (h *Handlers) Register(customize slacktest.Customize) {
	customize.Handle("/users.list", h.queryUsers)
	customize.Handle("/users.info", h.getUser)
	customize.Handle("/users.lookupByEmail", h.lookupByEmail)
}

func (h *Handlers) AddSlackUser(user SlackUser) string {
	h.l.Lock()
	defer h.l.Unlock()

	if id, ok := h.membersIDs[user.Name]; ok {
		return id
	}

	id := "U" + utils.GenerateRandomString(append(utils.CapitalLetters, utils.NumberLetters...), 8)
	member := slack.User{
		ID:       id,
		Name:     user.Name,
		Deleted:  user.Deleted,
		RealName: user.Name,
		TZ:       user.Timezone,
		Profile: slack.UserProfile{
			RealNameNormalized: user.Name,
			Email:              user.Email,
			Phone:              user.Phone,
		},
	}
	h.Members = append(h.Members, member)
	h.membersMap[id] = member
	h.membersIDs[user.Name] = id

	return id
}

func (h *Handlers) GetEmailLookups() []string {
	h.l.RLock()
	defer h.l.RUnlock()
	return append([]string(nil), h.EmailLookups...)
}

func (h *Handlers) writeError(w http.ResponseWriter, msg string, err error) {
	m := fmt.Sprintf("%s: %v", msg, err)
	log.Printf("%s\n", m)
	http.Error(w, m, http.StatusInternalServerError)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, res any) {
	output, err := json.Marshal(res)
	if err != nil {
		h.writeError(w, "error marshaling response", err)
		return
	}
	_, _ = w.Write(output)
}

func (h *Handlers) getURLValues(r *http.Request) (url.Values, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse body: %w", err)
	}
	// GET requests carry their arguments in the query string
	for k, v := range r.URL.Query() {
		values[k] = v
	}
	return values, nil
}

func (h *Handlers) queryUsers(w http.ResponseWriter, _ *http.Request) {
	h.l.RLock()
	defer h.l.RUnlock()
	h.writeJSON(w, map[string]any{ // nolint
		"ok":      true,
		"members": h.Members,
	})
}

func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request) {
	values, err := h.getURLValues(r)
	if err != nil {
		h.writeError(w, "error parsing body url query", err)
		return
	}

	id := values.Get("user")
	h.l.RLock()
	member, ok := h.membersMap[id]
	h.l.RUnlock()
	if !ok {
		h.writeJSON(w, map[string]any{"ok": false, "error": "user_not_found"}) // nolint
		return
	}

	h.writeJSON(w, map[string]any{ // nolint
		"ok":   true,
		"user": member,
	})
}

func (h *Handlers) lookupByEmail(w http.ResponseWriter, r *http.Request) {
	values, err := h.getURLValues(r)
	if err != nil {
		h.writeError(w, "error parsing body url query", err)
		return
	}

	email := values.Get("email")
	h.l.Lock()
	h.EmailLookups = append(h.EmailLookups, email)
	var found *slack.User
	for i := range h.Members {
		if h.Members[i].Profile.Email == email && !h.Members[i].Deleted {
			member := h.Members[i]
			found = &member
			break
		}
	}
	h.l.Unlock()

	if found == nil {
		h.writeJSON(w, map[string]any{"ok": false, "error": "users_not_found"}) // nolint
		return
	}
	h.writeJSON(w, map[string]any{ // nolint
		"ok":   true,
		"user": found,
	})
}

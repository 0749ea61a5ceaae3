// Package backendtest serves an in-memory query backend over httptest for
// tests of the packages built on backend.Client.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"querydesk/internal/chat"
)

// Server is a fake backend. Threads are keyed by chat id alone, the way the
// real backend files them; a project only remembers which chat ids it owns.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	projects []string
	owned    map[string][]string
	history  map[string]chat.Transcript
	notes    map[string]map[string]string
	noteList map[string][]string
	queries  []chat.QueryRequest

	reply func(req chat.QueryRequest) (string, error)
	fail  map[string]int
}

// New starts a server that knows the default project.
func New() *Server {
	s := &Server{
		projects: []string{chat.DefaultProject},
		owned:    map[string][]string{},
		history:  map[string]chat.Transcript{},
		notes:    map[string]map[string]string{},
		noteList: map[string][]string{},
		fail:     map[string]int{},
	}
	s.reply = func(req chat.QueryRequest) (string, error) {
		return "echo: " + req.Prompt, nil
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// AddProject registers a project with optional threads and their turns.
func (s *Server) AddProject(name string, threads map[string]chat.Transcript, order ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !contains(s.projects, name) {
		s.projects = append(s.projects, name)
	}
	for _, id := range order {
		s.own(name, id)
		s.history[id] = threads[id].Clone()
	}
}

// AddNote stores a note.
func (s *Server) AddNote(project, name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putNote(project, name, content)
}

// Note returns a stored note body.
func (s *Server) Note(project, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.notes[project][name]
	return c, ok
}

// History returns the turns stored for a chat.
func (s *Server) History(chatID string) chat.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[chatID].Clone()
}

// Queries returns every /query body received.
func (s *Server) Queries() []chat.QueryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.QueryRequest(nil), s.queries...)
}

// Projects returns the known project names.
func (s *Server) Projects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.projects...)
}

// SetReply replaces the /query answer. The default echoes the prompt; an
// error is sent back as {"error": ...}.
func (s *Server) SetReply(fn func(req chat.QueryRequest) (string, error)) {
	s.mu.Lock()
	s.reply = fn
	s.mu.Unlock()
}

// FailPath makes requests whose path starts with prefix answer status.
// A zero status clears the failure.
func (s *Server) FailPath(prefix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.fail, prefix)
		return
	}
	s.fail[prefix] = status
}

func (s *Server) own(project, chatID string) {
	if !contains(s.owned[project], chatID) {
		s.owned[project] = append(s.owned[project], chatID)
	}
}

func (s *Server) putNote(project, name, content string) {
	if s.notes[project] == nil {
		s.notes[project] = map[string]string{}
	}
	if _, ok := s.notes[project][name]; !ok {
		s.noteList[project] = append(s.noteList[project], name)
	}
	s.notes[project][name] = content
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	for prefix, status := range s.fail {
		if strings.HasPrefix(r.URL.Path, prefix) {
			s.mu.Unlock()
			writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
			return
		}
	}
	s.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "projects":
		writeJSON(w, http.StatusOK, s.Projects())
	case r.Method == http.MethodPost && len(parts) == 2 && parts[0] == "projects":
		s.createProject(w, parts[1])
	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "projects" && parts[2] == "chats":
		s.projectChats(w, parts[1])
	case len(parts) == 2 && parts[0] == "history":
		s.historyRoute(w, r, parts[1])
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "query":
		s.query(w, r)
	case len(parts) == 3 && parts[0] == "projects" && parts[2] == "notes" && r.Method == http.MethodGet:
		s.mu.Lock()
		names := append([]string{}, s.noteList[parts[1]]...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, names)
	case len(parts) == 4 && parts[0] == "projects" && parts[2] == "notes":
		s.noteRoute(w, r, parts[1], parts[3])
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
	}
}

func (s *Server) createProject(w http.ResponseWriter, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if contains(s.projects, name) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Project already exists"})
		return
	}
	s.projects = append(s.projects, name)
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Project %s created", name)})
}

// projectChats writes a JSON object by hand so key order follows creation.
func (s *Server) projectChats(w http.ResponseWriter, project string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !contains(s.projects, project) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Project not found"})
		return
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range s.owned[project] {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(id)
		val, _ := json.Marshal(s.history[id].Clone())
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, b.String())
}

func (s *Server) historyRoute(w http.ResponseWriter, r *http.Request, chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.history[chatID].Clone())
	case http.MethodDelete:
		s.history[chatID] = chat.Transcript{}
		writeJSON(w, http.StatusOK, map[string]string{"message": "cleared"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req chat.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	s.queries = append(s.queries, req)
	reply := s.reply
	s.mu.Unlock()

	text, err := reply(req)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.own(req.ProjectID, req.ChatID)
	s.history[req.ChatID] = append(s.history[req.ChatID].Clone(), chat.Turn{Prompt: req.Prompt, Response: text})
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"response": text})
}

func (s *Server) noteRoute(w http.ResponseWriter, r *http.Request, project, name string) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		content, ok := s.notes[project][name]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Note not found"})
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, content)
	case http.MethodPost:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		content := string(data)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var body struct {
				Content string `json:"content"`
			}
			if err := json.Unmarshal(data, &body); err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
				return
			}
			content = body.Content
		}
		s.mu.Lock()
		s.putNote(project, name, content)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "saved"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func contains(items []string, needle string) bool {
	for _, item := range items {
		if item == needle {
			return true
		}
	}
	return false
}

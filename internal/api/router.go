// Package api exposes the conversation engine over HTTP. Every route under
// /api except signup and login requires a bearer token; the user id always
// comes from the token, never from the request body.
package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/eclore/eclore/internal/catalog"
	"github.com/eclore/eclore/internal/middleware"
	"github.com/eclore/eclore/internal/models"
	"github.com/eclore/eclore/internal/services"
)

type Router struct {
	auth     *services.AuthService
	sessions *services.SessionManager
	orch     *services.Orchestrator
	onboard  *services.OnboardingService
	quest    *services.QuestionnaireService
	focus    *services.FocusService
	rec      *services.RecommendationService
	checkin  *services.CheckInService
	insights *services.InsightsService
	catalog  *catalog.Catalog
	log      *zap.SugaredLogger
}

type RouterConfig struct {
	Auth     *services.AuthService
	Sessions *services.SessionManager
	Orch     *services.Orchestrator
	Onboard  *services.OnboardingService
	Quest    *services.QuestionnaireService
	Focus    *services.FocusService
	Rec      *services.RecommendationService
	CheckIn  *services.CheckInService
	Insights *services.InsightsService
	Catalog  *catalog.Catalog
	Log      *zap.SugaredLogger
}

func NewRouter(cfg RouterConfig) *Router {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Router{
		auth:     cfg.Auth,
		sessions: cfg.Sessions,
		orch:     cfg.Orch,
		onboard:  cfg.Onboard,
		quest:    cfg.Quest,
		focus:    cfg.Focus,
		rec:      cfg.Rec,
		checkin:  cfg.CheckIn,
		insights: cfg.Insights,
		catalog:  cfg.Catalog,
		log:      log,
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/signup", rt.handleSignup)                                           // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)                                             // POST
	mux.HandleFunc("/api/session", rt.requireUser(rt.handleSession))                              // GET
	mux.HandleFunc("/api/onboarding/step", rt.requireUser(rt.handleOnboardingStep))               // POST
	mux.HandleFunc("/api/onboarding/finish", rt.requireUser(rt.handleOnboardingFinish))           // POST
	mux.HandleFunc("/api/questionnaire/start", rt.requireUser(rt.handleQuestionnaireStart))       // POST
	mux.HandleFunc("/api/questionnaire/answer", rt.requireUser(rt.handleQuestionnaireAnswer))     // POST
	mux.HandleFunc("/api/questionnaire/continue", rt.requireUser(rt.handleQuestionnaireContinue)) // POST
	mux.HandleFunc("/api/focus/primary", rt.requireUser(rt.handleFocusPrimary))                   // POST
	mux.HandleFunc("/api/focus/secondary", rt.requireUser(rt.handleFocusSecondary))               // POST
	mux.HandleFunc("/api/checkin", rt.requireUser(rt.handleCheckIn))                              // POST
	mux.HandleFunc("/api/exercises", rt.requireUser(rt.handleExercises))                          // GET
	mux.HandleFunc("/api/exercises/complete", rt.requireUser(rt.handleExerciseComplete))          // POST
	mux.HandleFunc("/api/chat", rt.requireUser(rt.handleChat))                                    // POST
	mux.HandleFunc("/api/insights", rt.requireUser(rt.handleInsights))                            // GET
	mux.HandleFunc("/api/export", rt.requireUser(rt.handleExport))                                // GET
	mux.HandleFunc("/health", rt.handleHealth)
}

type userHandler func(w http.ResponseWriter, r *http.Request, s *services.Session)

// requireUser resolves the session of the authenticated user before the
// handler runs.
func (rt *Router) requireUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r, rt.sessions.Get(uid))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (rt *Router) writeServiceError(w http.ResponseWriter, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusInternalServerError
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorBadGateway:
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]string{"error": se.Message, "code": string(se.Code)})
		return
	}
	rt.log.Errorw("internal error", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func postOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// POST /api/auth/signup
func (rt *Router) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !postOnly(w, r) {
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := rt.auth.Register(req.Email, req.Password)
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": res.Token, "user_id": res.UserID})
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !postOnly(w, r) {
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": res.Token, "user_id": res.UserID})
}

type sessionView struct {
	Profile         models.Profile       `json:"profile"`
	ProfileSaved    bool                 `json:"profile_saved"`
	ProfileComplete bool                 `json:"profile_complete"`
	PendingStep     string               `json:"pending_step,omitempty"`
	Selected        models.SelectedAxes  `json:"selected"`
	Transcript      []models.ChatMessage `json:"transcript"`
	Loading         bool                 `json:"loading"`
}

// GET /api/session fetches the conversation state, opening the script for
// fresh users. During onboarding the view names the step the engine waits
// on, so a client can resync after a reload.
func (rt *Router) handleSession(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.State()
	if len(rt.orch.Transcript(s)) == 0 {
		if st.ProfileSaved {
			rt.orch.Greet(s)
		} else {
			rt.onboard.Start(s)
		}
	}
	view := sessionView{
		Profile:         st.Profile,
		ProfileSaved:    st.ProfileSaved,
		ProfileComplete: st.ProfileComplete,
		Selected:        st.Selected,
		Transcript:      rt.orch.Transcript(s),
		Loading:         st.Loading,
	}
	if !st.ProfileSaved {
		if step, ok := rt.onboard.CurrentStep(s); ok {
			view.PendingStep = step.ID
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// transcriptTail responds with the entries appended by the current call's
// side effects; clients just re-render the full transcript.
func (rt *Router) writeTranscript(w http.ResponseWriter, s *services.Session) {
	writeJSON(w, http.StatusOK, map[string]any{"transcript": rt.orch.Transcript(s)})
}

// POST /api/onboarding/step
func (rt *Router) handleOnboardingStep(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if !postOnly(w, r) {
		return
	}
	var req struct {
		StepID string `json:"step_id"`
		Value  string `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := rt.onboard.Submit(s, req.StepID, req.Value); err != nil {
		rt.writeServiceError(w, err)
		return
	}
	rt.writeTranscript(w, s)
}

// POST /api/onboarding/finish
func (rt *Router) handleOnboardingFinish(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if !postOnly(w, r) {
		return
	}
	var req struct {
		ContinueNow bool `json:"continue_now"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := rt.onboard.Finish(s, req.ContinueNow); err != nil {
		rt.writeServiceError(w, err)
		return
	}
	rt.writeTranscript(w, s)
}

// POST /api/questionnaire/start
func (rt *Router) handleQuestionnaireStart(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if !postOnly(w, r) {
		return
	}
	if err := rt.quest.StartNext(s); err != nil {
		rt.writeServiceError(w, err)
		return
	}
	rt.writeTranscript(w, s)
}

// POST /api/questionnaire/answer
func (rt *Router) handleQuestionnaireAnswer(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if !postOnly(w, r) {
		return
	}
	var req struct {
		QuestionID string `json:"question_id"`
		Value      int    `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := rt.quest.Answer(s, req.QuestionID, req.Value); err != nil {
		rt.writeServiceError(w, err)
		return
	}
	rt.writeTranscript(w, s)
}

// POST /api/questionnaire/continue resolves the continue/later choice.
func (rt *Router) handleQuestionnaireContinue(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if !postOnly(w, r) {
		return
	}
	var req struct {
		Continue bool `json:"continue"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	var err error
	if req.Continue {
		err = rt.quest.Continue(s)
	} else {
		err = rt.quest.Defer(s)
	}
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	rt.writeTranscript(w, s)
}

// POST /api/focus/primary
func (rt *Router) handleFocusPrimary(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if !postOnly(w, r) {
		return
	}
	var req struct {
		AxisID string `json:"axis_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := rt.focus.SelectPrimary(s, req.AxisID); err != nil {
		rt.writeServiceError(w, err)
		return
	}
	rt.writeTranscript(w, s)
}

// POST /api/focus/secondary
func (rt *Router) handleFocusSecondary(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if !postOnly(w, r) {
		return
	}
	var req struct {
		AxisIDs []string `json:"axis_ids"`
		Skip    bool     `json:"skip"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	var err error
	if req.Skip {
		err = rt.focus.Skip(s)
	} else {
		err = rt.focus.SelectSecondary(s, req.AxisIDs)
	}
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	rt.writeTranscript(w, s)
}

// POST /api/checkin
func (rt *Router) handleCheckIn(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if !postOnly(w, r) {
		return
	}
	var req struct {
		Mood int    `json:"mood"`
		Note string `json:"note"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	ci, resp, err := rt.checkin.CheckIn(s, req.Mood, req.Note)
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"check_in": map[string]any{"mood": ci.Mood, "date": ci.Date, "note": ci.Note},
		"response": resp,
	})
}

// GET /api/exercises lists the recommendations for the primary axis.
func (rt *Router) handleExercises(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	primary := s.State().Selected.Primary
	writeJSON(w, http.StatusOK, map[string]any{
		"exercises": rt.rec.ExercisesFor(primary),
		"tips":      rt.rec.TipsFor(primary),
	})
}

// POST /api/exercises/complete
func (rt *Router) handleExerciseComplete(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if !postOnly(w, r) {
		return
	}
	var req struct {
		ExerciseID string `json:"exercise_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := rt.rec.Complete(s, req.ExerciseID); err != nil {
		rt.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// POST /api/chat
func (rt *Router) handleChat(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if !postOnly(w, r) {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	reply, err := rt.orch.SendUserText(r.Context(), s, req.Text)
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reply": reply, "transcript": rt.orch.Transcript(s)})
}

// GET /api/insights
func (rt *Router) handleInsights(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, rt.insights.Build(s))
}

// GET /api/export?what=answers|checkins returns a CSV download.
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var (
		out  []byte
		name string
		err  error
	)
	switch r.URL.Query().Get("what") {
	case "checkins":
		out, err = services.ExportCheckInsCSV(s.CheckInHistory())
		name = "check_ins.csv"
	case "answers", "":
		values := s.AnswerValues()
		answers := make([]models.Answer, 0, len(values))
		for id, value := range values {
			a := models.Answer{QuestionID: id, Value: value}
			if sec, ok := rt.catalog.SectionOf(id); ok {
				a.SectionID = sec.ID
				if q, ok := sec.Question(id); ok {
					if opt, ok := q.Option(value); ok {
						a.Label = opt.Label
					}
				}
			}
			answers = append(answers, a)
		}
		out, err = services.ExportAnswersCSV(answers)
		name = "answers.csv"
	default:
		http.Error(w, "unknown export", http.StatusBadRequest)
		return
	}
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	_, _ = w.Write(out)
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

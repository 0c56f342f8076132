package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/elearn/apps/api/echo"
	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/access"
	"github.com/trezcool/elearn/core/entitlement"
	"github.com/trezcool/elearn/core/quiz"
	"github.com/trezcool/elearn/core/selection"
	"github.com/trezcool/elearn/core/user"
	"github.com/trezcool/elearn/storage/database/dummy"
	"github.com/trezcool/elearn/tests"
)

var (
	t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	student = user.User{ID: "u-student", Username: "student", Roles: []string{user.RoleStudent}}
	staff   = user.User{ID: "u-staff", Username: "staff", Roles: []string{user.RoleStaffSupport}}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type testApp struct {
	server   *Server
	conf     *core.Config
	resolver *entitlement.Resolver
	clock    *testutil.Clock
}

func setup(t *testing.T) testApp {
	clock := testutil.FreezeClock(t, t0)
	db, err := dummydb.Open()
	require.NoError(t, err)
	testutil.SeedCatalog(db)
	testutil.SeedPlans(db)

	conf := &core.Config{
		AppName:     "Elearn",
		Env:         "TEST",
		TestMode:    true,
		SecretKey:   "secret",
		Server:      core.ServerConfig{JWTExpirationDelta: time.Hour, DisableReqLogs: true},
		Entitlement: core.EntitlementConfig{FreeSampleTTL: time.Minute},
	}
	catalogRepo := dummydb.NewCatalogRepository(db)
	resolver := entitlement.NewResolver(dummydb.NewEntitlementRepository(db), catalogRepo, &core.NopLogger{}, conf)
	selector := selection.NewSelector(catalogRepo, rand.NewSource(1))

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	quiz.InitValidators(validate, translator)

	server := NewServer(ServerDeps{
		Conf:         conf,
		Logger:       &core.NopLogger{},
		Catalog:      catalogRepo,
		Entitlements: resolver,
		Gate:         access.NewGate(resolver, catalogRepo),
		QuizSvc:      quiz.NewService(dummydb.NewQuizRepository(db), catalogRepo, selector, resolver, &core.NopLogger{}),
		Validate:     validate,
		Translator:   translator,
	})
	return testApp{server: server, conf: conf, resolver: resolver, clock: clock}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, app testApp, usr user.User) string {
	token, err := GenerateToken(GetUserClaims(usr, app.conf), app.conf)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, app testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// do sends one request and decodes the response into dest when set.
func do(t *testing.T, app testApp, method, path, token string, body []byte, dest interface{}) int {
	req, rec := newAuthRequest(method, path, token, body)
	app.server.ServeHTTP(rec, req)
	if dest != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
	}
	return rec.Code
}

func TestServer_home(t *testing.T) {
	app := setup(t)
	req, rec := newAuthRequest(http.MethodGet, "/", "")
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Elearn API!", rec.Body.String())
}

func Test_entitlementApi(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	studentToken := getToken(t, app, student)
	staffToken := getToken(t, app, staff)

	studentSet, err := app.resolver.ResolveEntitlements(ctx, student)
	require.NoError(t, err)
	staffSet, err := app.resolver.ResolveEntitlements(ctx, staff)
	require.NoError(t, err)

	cbc := map[string]interface{}{"id": 1, "name": "CBC", "slug": "cbc", "is_active": true}
	igcse := map[string]interface{}{"id": 2, "name": "IGCSE", "slug": "igcse", "is_active": true}
	grade4 := map[string]interface{}{"id": 10, "curriculum_id": 1, "name": "Grade 4", "slug": "grade-4"}
	grade5 := map[string]interface{}{"id": 11, "curriculum_id": 1, "name": "Grade 5", "slug": "grade-5"}

	tests := []httpTest{
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     "/v1/entitlements",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "student entitlements",
			method:   http.MethodGet,
			path:     "/v1/entitlements",
			token:    studentToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, studentSet),
		},
		{
			name:     "staff entitlements",
			method:   http.MethodGet,
			path:     "/v1/entitlements",
			token:    staffToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, staffSet),
		},
		{
			name:     "sampled class level",
			method:   http.MethodGet,
			path:     "/v1/access?curriculum=1&class_level=10",
			token:    studentToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, AccessResponse{Allowed: true}),
		},
		{
			name:     "other curriculum",
			method:   http.MethodGet,
			path:     "/v1/access?curriculum=2",
			token:    studentToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, AccessResponse{Allowed: false}),
		},
		{
			name:     "missing curriculum",
			method:   http.MethodGet,
			path:     "/v1/access",
			token:    studentToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"curriculum": "this field is required"}),
		},
		{
			name:     "invalid class level",
			method:   http.MethodGet,
			path:     "/v1/access?curriculum=1&class_level=ten",
			token:    studentToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"class_level": "invalid id"}),
		},
		{
			name:     "student curricula",
			method:   http.MethodGet,
			path:     "/v1/catalog/curricula",
			token:    studentToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []interface{}{cbc}),
		},
		{
			name:     "staff curricula",
			method:   http.MethodGet,
			path:     "/v1/catalog/curricula",
			token:    staffToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []interface{}{cbc, igcse}),
		},
		{
			name:     "student class levels",
			method:   http.MethodGet,
			path:     "/v1/catalog/curricula/1/class-levels",
			token:    studentToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []interface{}{grade4}),
		},
		{
			name:     "staff class levels",
			method:   http.MethodGet,
			path:     "/v1/catalog/curricula/1/class-levels",
			token:    staffToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []interface{}{grade4, grade5}),
		},
		{
			name:     "class levels denied",
			method:   http.MethodGet,
			path:     "/v1/catalog/curricula/2/class-levels",
			token:    studentToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, map[string]interface{}{
				"error": "access denied to curriculum 2", "curriculum_id": 2, "class_level_id": nil,
			}),
		},
		{
			name:     "quiz denied",
			method:   http.MethodGet,
			path:     "/v1/catalog/quizzes/3",
			token:    studentToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, map[string]interface{}{
				"error": "access denied to curriculum 2 class level 20", "curriculum_id": 2, "class_level_id": 20,
			}),
		},
		{
			name:     "inactive quiz",
			method:   http.MethodGet,
			path:     "/v1/catalog/quizzes/4",
			token:    staffToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: quiz.ErrQuizNotFound.Error()}),
		},
		{
			name:     "invalid quiz id",
			method:   http.MethodGet,
			path:     "/v1/catalog/quizzes/abc",
			token:    staffToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	}
	runTests(t, app, tests)

	t.Run("quiz details", func(t *testing.T) {
		var qz map[string]interface{}
		code := do(t, app, http.MethodGet, "/v1/catalog/quizzes/1", studentToken, nil, &qz)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Maths", qz["title"])
	})
}

func Test_attemptApi_flow(t *testing.T) {
	app := setup(t)
	token := getToken(t, app, student)

	var att quiz.Attempt
	code := do(t, app, http.MethodPost, "/v1/quizzes/1/attempts", token, nil, &att)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, []int64{testutil.QuestionFractionsMC, testutil.QuestionCapitalSA, testutil.QuestionGeometryMC}, att.Selection)
	assert.Equal(t, 45, att.TimeLimitSeconds)

	var resumed quiz.Attempt
	code = do(t, app, http.MethodPost, "/v1/quizzes/1/attempts", token, nil, &resumed)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, att.ID, resumed.ID)

	base := "/v1/attempts/" + att.ID

	var next NextQuestionResponse
	code = do(t, app, http.MethodGet, base+"/next", token, nil, &next)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, next.Question)
	assert.Equal(t, testutil.QuestionFractionsMC, next.Question.QuestionID)
	assert.Len(t, next.Question.Choices, 4)
	assert.Equal(t, 1, next.Question.Position)

	runTests(t, app, []httpTest{
		{
			name:     "missing question",
			method:   http.MethodPost,
			path:     base + "/answers",
			body:     []byte(`{"choice_id": 112}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"question_id": "this field is required"}),
		},
		{
			name:     "choice and answer",
			method:   http.MethodPost,
			path:     base + "/answers",
			body:     []byte(`{"question_id": 11, "choice_id": 112, "answer": "two"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"choice_id": "provide either a choice or an answer",
				"answer":    "provide either a choice or an answer",
			}),
		},
		{
			name:     "foreign question",
			method:   http.MethodPost,
			path:     base + "/answers",
			body:     []byte(`{"question_id": 14, "choice_id": 141}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"question_id": "question is not part of this attempt"}),
		},
		{
			name:     "unknown attempt",
			method:   http.MethodGet,
			path:     "/v1/attempts/nope/next",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: quiz.ErrAttemptNotFound.Error()}),
		},
		{
			name:     "other user's attempt",
			method:   http.MethodGet,
			path:     base + "/results",
			token:    getToken(t, app, staff),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: quiz.ErrAttemptNotFound.Error()}),
		},
	})

	var answered quiz.Attempt
	code = do(t, app, http.MethodPost, base+"/answers", token, []byte(`{"question_id": 11, "choice_id": 112, "time_spent_seconds": 4}`), &answered)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, answered.CorrectAnswers)
	assert.Equal(t, 33, answered.Score)

	code = do(t, app, http.MethodPost, base+"/answers", token, []byte(`{"question_id": 12, "answer": " paris "}`), &answered)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 67, answered.Score)

	var finished quiz.Attempt
	code = do(t, app, http.MethodPost, base+"/finish", token, nil, &finished)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, quiz.StatusCompleted, finished.Status)

	runTests(t, app, []httpTest{
		{
			name:     "answer after finish",
			method:   http.MethodPost,
			path:     base + "/answers",
			body:     []byte(`{"question_id": 13, "choice_id": 131}`),
			token:    token,
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, map[string]string{
				"error":       quiz.ErrAttemptNotInProgress.Error(),
				"results_url": base + "/results",
			}),
		},
	})

	var res quiz.Results
	code = do(t, app, http.MethodGet, base+"/results", token, nil, &res)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 67, res.Attempt.Score)
	assert.True(t, res.Passed)
	assert.Equal(t, 2, res.Answered)
	assert.Len(t, res.Questions, 3)

	var atts []quiz.Attempt
	code = do(t, app, http.MethodGet, "/v1/attempts?quiz=1", token, nil, &atts)
	require.Equal(t, http.StatusOK, code)
	if assert.Len(t, atts, 1) {
		assert.Equal(t, att.ID, atts[0].ID)
	}
}

func Test_attemptApi_start(t *testing.T) {
	app := setup(t)
	studentToken := getToken(t, app, student)
	staffToken := getToken(t, app, staff)

	runTests(t, app, []httpTest{
		{
			name:     "denied",
			method:   http.MethodPost,
			path:     "/v1/quizzes/3/attempts",
			token:    studentToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, map[string]interface{}{
				"error": "access denied to curriculum 2 class level 20", "curriculum_id": 2, "class_level_id": 20,
			}),
		},
		{
			name:     "no questions",
			method:   http.MethodPost,
			path:     "/v1/quizzes/5/attempts",
			token:    staffToken,
			wantCode: http.StatusUnprocessableEntity,
			wantData: marchallObj(t, httpErr{Error: selection.ErrNoQuestionsAvailable.Error()}),
		},
		{
			name:     "unknown quiz",
			method:   http.MethodPost,
			path:     "/v1/quizzes/99/attempts",
			token:    staffToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: quiz.ErrQuizNotFound.Error()}),
		},
		{
			name:     "invalid options",
			method:   http.MethodPost,
			path:     "/v1/quizzes/2/attempts",
			body:     []byte(`{"question_count": 500}`),
			token:    studentToken,
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("practice", func(t *testing.T) {
		var att quiz.Attempt
		body := []byte(`{"topic_ids": [1001], "question_count": 1}`)
		code := do(t, app, http.MethodPost, "/v1/quizzes/2/attempts", studentToken, body, &att)
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, []int64{testutil.QuestionGeometryMC}, att.Selection)
		assert.Zero(t, att.TimeLimitSeconds)
	})

	t.Run("timed out", func(t *testing.T) {
		var att quiz.Attempt
		code := do(t, app, http.MethodPost, "/v1/quizzes/1/attempts", studentToken, nil, &att)
		require.Equal(t, http.StatusCreated, code)

		app.clock.Advance(46 * time.Second)
		var body map[string]string
		code = do(t, app, http.MethodPost, "/v1/attempts/"+att.ID+"/answers", studentToken, []byte(`{"question_id": 11, "choice_id": 112}`), &body)
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, quiz.ErrAttemptTimedOut.Error(), body["error"])
		assert.Equal(t, "/v1/attempts/"+att.ID+"/results", body["results_url"])

		var res quiz.Results
		code = do(t, app, http.MethodGet, "/v1/attempts/"+att.ID+"/results", studentToken, nil, &res)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, quiz.StatusTimedOut, res.Attempt.Status)
	})
}

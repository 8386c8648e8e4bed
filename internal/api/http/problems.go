package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/capa"
	"github.com/mind-engage/mindengage-capa/internal/grading"
	"github.com/mind-engage/mindengage-capa/internal/store"
)

const maxUpload = 16 << 20

// PUT /problems/{problemID}  body: problem XML
func PutProblemHandler(svc *capa.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "problemID"))
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxUpload))
		if err != nil || len(raw) == 0 {
			http.Error(w, "problem xml required", http.StatusBadRequest)
			return
		}
		if err := svc.PutProblem(r.Context(), id, string(raw)); err != nil {
			log.Info("problem rejected", zap.String("problem", id), zap.Error(err))
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

type checkReq struct {
	StudentID string                 `json:"student_id"`
	Answers   map[string]interface{} `json:"answers"`
}

// POST /problems/{problemID}/check
//
// JSON {student_id, answers}, or multipart with a student_id field, one
// field per answer id (repeated for lists) and file parts for uploads.
func CheckHandler(svc *capa.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "problemID"))
		var req checkReq
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			sub, student, err := multipartSubmission(r)
			if err != nil {
				http.Error(w, "bad form: "+err.Error(), http.StatusBadRequest)
				return
			}
			req = checkReq{StudentID: student, Answers: sub}
		} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.StudentID == "" {
			http.Error(w, "student_id required", http.StatusBadRequest)
			return
		}
		res, err := svc.Check(r.Context(), id, req.StudentID, normalize(req.Answers))
		if err != nil {
			log.Debug("check failed", zap.String("problem", id), zap.String("student", req.StudentID), zap.Error(err))
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// normalize turns JSON string arrays into []string, the list form responses
// read.
func normalize(answers map[string]interface{}) grading.Submission {
	out := make(grading.Submission, len(answers))
	for k, v := range answers {
		list, ok := v.([]interface{})
		if !ok {
			out[k] = v
			continue
		}
		strs := make([]string, 0, len(list))
		for _, e := range list {
			s, isStr := e.(string)
			if !isStr {
				strs = nil
				break
			}
			strs = append(strs, s)
		}
		if strs == nil && len(list) > 0 {
			out[k] = v
		} else {
			out[k] = strs
		}
	}
	return out
}

func multipartSubmission(r *http.Request) (map[string]interface{}, string, error) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return nil, "", err
	}
	sub := map[string]interface{}{}
	for k, vs := range r.MultipartForm.Value {
		if k == "student_id" {
			continue
		}
		if len(vs) == 1 {
			sub[k] = vs[0]
		} else {
			sub[k] = append([]string(nil), vs...)
		}
	}
	for k, fhs := range r.MultipartForm.File {
		files := make([]grading.File, 0, len(fhs))
		for _, fh := range fhs {
			f, err := fh.Open()
			if err != nil {
				return nil, "", err
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, "", err
			}
			files = append(files, grading.File{Name: fh.Filename, Data: data})
		}
		if len(files) == 1 {
			sub[k] = files[0]
		} else {
			sub[k] = files
		}
	}
	return sub, r.FormValue("student_id"), nil
}

// GET /problems/{problemID}/answers?student_id=
func AnswersHandler(svc *capa.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "problemID"))
		student := r.URL.Query().Get("student_id")
		if student == "" {
			http.Error(w, "student_id required", http.StatusBadRequest)
			return
		}
		answers, err := svc.Answers(r.Context(), id, student)
		if err != nil {
			log.Debug("answers failed", zap.String("problem", id), zap.Error(err))
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, answers)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps grading and store errors to statuses. Student input
// errors carry a message meant for the student.
func writeError(w http.ResponseWriter, err error) {
	var (
		input *grading.StudentInputError
		spec  *grading.SpecificationError
		resp  *grading.ResponseError
	)
	status := http.StatusInternalServerError
	body := map[string]string{"error": err.Error()}
	switch {
	case errors.As(err, &input):
		status = http.StatusUnprocessableEntity
		body["kind"] = string(input.Kind)
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, capa.ErrNotWaiting):
		status = http.StatusConflict
	case errors.As(err, &spec):
		status = http.StatusBadRequest
	case errors.As(err, &resp):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, body)
}

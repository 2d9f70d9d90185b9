//go:build js && wasm

// Package main provides WASM bindings for the survey engine.
// This allows questionnaire forms to validate answers in the browser before submitting them.
package main

import (
	"context"
	"encoding/json"
	"strings"
	"syscall/js"

	"github.com/dlovans/surveyor/pkg/catalog"
	"github.com/dlovans/surveyor/pkg/store/memstore"
	"github.com/dlovans/surveyor/pkg/survey"
)

func main() {
	js.Global().Set("SurveyorValidate", js.FuncOf(surveyorValidate))
	js.Global().Set("SurveyorOptions", js.FuncOf(surveyorOptions))

	// Keep the Go runtime alive
	select {}
}

// surveyorValidate checks one proposed answer against the respondent's recorded answers.
// Usage: SurveyorValidate(answersJson, questionNumber, valueJson) -> { result?: object, rejection?: object, error?: string }
//
// answersJson is {"respondent_id": 7, "version_id": 1, "answers": {"2.1": 3}}.
func surveyorValidate(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeError("SurveyorValidate requires 3 arguments: answersJson, questionNumber, valueJson")
	}

	var raw any
	dec := json.NewDecoder(strings.NewReader(args[2].String()))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return makeError("valueJson is not valid JSON: " + err.Error())
	}

	ctx := context.Background()
	s, err := load(ctx, args[0].String())
	if err != nil {
		return makeError(err.Error())
	}
	q, err := s.catalog.QuestionByNumber(ctx, s.version, args[1].String())
	if err != nil {
		return makeError(err.Error())
	}

	d, err := s.engine.Validate(ctx, survey.Submission{
		RespondentID: s.respondent,
		VersionID:    s.version,
		QuestionID:   q.ID,
		Raw:          raw,
	})
	if r, ok := survey.AsRejection(err); ok {
		return map[string]any{"rejection": toJS(r)}
	}
	if err != nil {
		return makeError(err.Error())
	}
	return map[string]any{"result": toJS(map[string]any{
		"number":  d.Question.Number,
		"value":   d.Value,
		"checked": d.Checked,
	})}
}

// surveyorOptions lists the choices currently open for a dropdown question.
// Usage: SurveyorOptions(answersJson, questionNumber) -> { options?: string[] | null, rejection?: object, error?: string }
func surveyorOptions(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return makeError("SurveyorOptions requires 2 arguments: answersJson, questionNumber")
	}

	ctx := context.Background()
	s, err := load(ctx, args[0].String())
	if err != nil {
		return makeError(err.Error())
	}
	q, err := s.catalog.QuestionByNumber(ctx, s.version, args[1].String())
	if err != nil {
		return makeError(err.Error())
	}

	opts, err := s.engine.Options(ctx, s.respondent, s.version, q.ID)
	if r, ok := survey.AsRejection(err); ok {
		return map[string]any{"rejection": toJS(r)}
	}
	if err != nil {
		return makeError(err.Error())
	}
	return map[string]any{"options": toJS(opts)}
}

type session struct {
	catalog    *catalog.Catalog
	engine     *survey.Engine
	respondent int64
	version    int64
}

// load builds an engine over the embedded questionnaire and the given answers.
func load(ctx context.Context, answersJSON string) (*session, error) {
	c, err := catalog.Default()
	if err != nil {
		return nil, err
	}
	answers, f, err := memstore.LoadFixture(ctx, strings.NewReader(answersJSON), c)
	if err != nil {
		return nil, err
	}
	store := memstore.New()
	store.Load(answers)
	return &session{
		catalog:    c,
		engine:     survey.NewEngine(c, store),
		respondent: f.RespondentID,
		version:    f.VersionID,
	}, nil
}

// makeError creates a JS-friendly error response
func makeError(msg string) map[string]any {
	return map[string]any{
		"error": msg,
	}
}

// toJS round-trips v through JSON so syscall/js receives plain maps and slices.
func toJS(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

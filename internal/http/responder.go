package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/worship-scheduler/internal/application"
)

var (
	errBadRequestBody   = errors.New("無効なリクエスト形式です。")
	errInvalidTeamID    = errors.New("無効なチーム ID です。")
	errInvalidKey       = errors.New("無効なインスタンスキーです。")
	errInvalidDate      = errors.New("無効な日付です。日付は YYYY-MM-DD 形式で指定してください。")
	errMissingMemberID  = errors.New("メンバー ID を指定してください")
	errInvalidMemberID  = errors.New("無効なメンバー ID です。")
	errMissingClientID  = errors.New("クライアント ID を指定してください")
	errUnknownFocus     = errors.New("フォーカストークンが見つかりません。")
	errInvalidServiceID = errors.New("無効なサービス種別 ID です。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "LEADER_REQUIRED",
			Message:   "この操作はリーダーのみ実行できます。",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "指定されたリソースが見つかりません。"})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "ALREADY_EXISTS",
			Message:   "同じ内容のリソースが既に存在します。",
		})
	case errors.Is(err, application.ErrStaleContext):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "STALE_CONTEXT",
			Message:   "別のスケジュールに移動したため、この変更は破棄されました。",
		})
	case errors.Is(err, application.ErrInvalidKey):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Message: errInvalidKey.Error()})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				Message: "入力内容に誤りがあります。",
				Errors:  localizeValidationErrors(vErr),
			})
			return
		}

		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "認証が必要です。"
	case http.StatusForbidden:
		return "この操作を実行する権限がありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "is required":
		return "必須項目です。"
	case "must be HH:MM":
		return "時刻は HH:MM 形式で指定してください。"
	case "must be available or unavailable":
		return "available または unavailable を指定してください。"
	case "must be weekly or flexible":
		return "weekly または flexible を指定してください。"
	case "must be none, same_day or separate_day":
		return "none、same_day、separate_day のいずれかを指定してください。"
	case "must be draft, complete or published":
		return "draft、complete、published のいずれかを指定してください。"
	case "must not precede from":
		return "終了日は開始日以降を指定してください。"
	case "must be between 0 (Sunday) and 6 (Saturday)":
		return "曜日は 0 (日曜) から 6 (土曜) の範囲で指定してください。"
	case "must not be negative", "count must not be negative":
		return "負の値は指定できません。"
	case "must not contain ':'", "must not contain '|'", "must not contain ':' or wildcard characters":
		return "使用できない文字が含まれています。"
	case "must not use the reserved ad-hoc prefix":
		return "予約済みの接頭辞は使用できません。"
	case "slot keys must not be empty", "instrument ids must not be empty":
		return "空のキーは指定できません。"
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

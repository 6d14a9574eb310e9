// Package telegram is a minimal client for the Telegram Bot API, raw
// HTTP against api.telegram.org. It covers exactly the surface the bot
// needs: long-polled updates, text messages, photo uploads and an
// inline-keyboard run menu.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const defaultAPIBase = "https://api.telegram.org"

type Chat struct {
	ID int64 `json:"id"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	Message *Message `json:"message"`
}

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type Bot struct {
	token   string
	apiBase string
	httpc   *http.Client
	limiter *rate.Limiter
	offset  int64
}

func NewBot(token string) *Bot {
	return &Bot{
		token:   token,
		apiBase: defaultAPIBase,
		httpc:   &http.Client{Timeout: 45 * time.Second},
		// Telegram allows roughly 30 messages per second per bot.
		limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 5),
	}
}

// Poll long-polls getUpdates and delivers every update to out, in order,
// until ctx is cancelled. Transport errors are logged and retried.
func (b *Bot) Poll(ctx context.Context, out chan<- Update) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		params := url.Values{}
		params.Set("timeout", "30")
		if b.offset > 0 {
			params.Set("offset", strconv.FormatInt(b.offset, 10))
		}

		result, err := b.call(ctx, "getUpdates", params)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("telegram: getUpdates failed, retrying")
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		var updates []Update
		if err := json.Unmarshal(result, &updates); err != nil {
			log.Error().Err(err).Msg("telegram: failed to parse updates")
			continue
		}

		for _, update := range updates {
			b.offset = update.UpdateID + 1
			select {
			case out <- update:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)

	_, err := b.call(ctx, "sendMessage", params)
	return err
}

// SendRunMenu sends a message with one inline-keyboard button per run,
// sorted alphabetically. The button's callback data is the run name.
func (b *Bot) SendRunMenu(ctx context.Context, chatID int64, runs []string) error {
	labels := append([]string(nil), runs...)
	sort.Strings(labels)

	keyboard := inlineKeyboardMarkup{}
	for _, label := range labels {
		keyboard.InlineKeyboard = append(keyboard.InlineKeyboard,
			[]inlineKeyboardButton{{Text: label, CallbackData: label}})
	}
	markup, err := json.Marshal(keyboard)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run keyboard")
	}

	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", "Please select run")
	params.Set("reply_markup", string(markup))

	_, err = b.call(ctx, "sendMessage", params)
	return err
}

func (b *Bot) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))
	params.Set("text", text)

	_, err := b.call(ctx, "editMessageText", params)
	return err
}

func (b *Bot) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	params := url.Values{}
	params.Set("callback_query_id", callbackID)

	_, err := b.call(ctx, "answerCallbackQuery", params)
	return err
}

// SendPhoto uploads a PNG image as a photo message.
func (b *Bot) SendPhoto(ctx context.Context, chatID int64, image []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return errors.Wrap(err, "failed to build photo upload")
	}
	part, err := writer.CreateFormFile("photo", "plot.png")
	if err != nil {
		return errors.Wrap(err, "failed to build photo upload")
	}
	if _, err := part.Write(image); err != nil {
		return errors.Wrap(err, "failed to build photo upload")
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "failed to build photo upload")
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendPhoto", b.apiBase, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return errors.Wrap(err, "failed to build sendPhoto request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "sendPhoto failed")
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

func (b *Bot) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", b.apiBase, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s request", method)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s failed", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s response", method)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("telegram API returned status code %d: %s", resp.StatusCode, string(body))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s response", method)
	}
	if !envelope.OK {
		return nil, errors.Errorf("telegram API rejected %s: %s", method, envelope.Description)
	}
	return envelope.Result, nil
}

func checkResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("telegram API returned status code %d: %s", resp.StatusCode, string(body))
	}
	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	if !envelope.OK {
		return errors.Errorf("telegram API rejected request: %s", envelope.Description)
	}
	return nil
}

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/autodocgen/boarddocs/pkg/apperr"
	"github.com/autodocgen/boarddocs/pkg/board"
	"github.com/autodocgen/boarddocs/pkg/jobs"
	"github.com/autodocgen/boarddocs/pkg/trello"
)

var _ = Describe("boarddocs API", func() {
	var (
		f   *fixture
		ctx context.Context
	)

	BeforeEach(func() {
		f = newFixture()
		ctx = context.Background()
	})

	AfterEach(func() {
		f.close()
	})

	connect := func(owner, token string, boards ...trello.Board) {
		f.provider.mu.Lock()
		f.provider.boards[token] = boards
		f.provider.mu.Unlock()
		code, body := f.do(http.MethodPost, "/trello/save_token", map[string]string{"user_id": owner, "trello_token": token})
		Expect(code).To(Equal(http.StatusOK), "%v", body)
	}

	Context("webhook endpoint", func() {
		It("answers the provider handshake", func() {
			code, body := f.do(http.MethodHead, "/pm", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(BeEmpty())

			code, body = f.do(http.MethodGet, "/pm", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("status", "ok"))
		})

		It("acknowledges malformed and unmapped events without scheduling work", func() {
			for _, payload := range []any{"{not json", map[string]any{"action": map[string]any{}}, webhookBody("unknown-board")} {
				code, body := f.do(http.MethodPost, "/pm", payload)
				Expect(code).To(Equal(http.StatusOK))
				Expect(body).To(HaveKeyWithValue("status", "received"))
			}

			_, _, total, err := f.jobs.List(jobs.JobListFilter{}, 10, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeZero())
		})

		It("queues generation and records a notification for a mapped board", func() {
			Expect(f.mappings.Upsert(ctx, &board.BoardMapping{BoardID: "b1", OwnerID: "u1", BoardName: "Sprint"})).To(Succeed())

			code, _ := f.do(http.MethodPost, "/pm", webhookBody("b1"))
			Expect(code).To(Equal(http.StatusOK))

			records, _, total, err := f.jobs.List(jobs.JobListFilter{OwnerID: "u1"}, 10, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(1))
			Expect(records[0].BoardID).To(Equal("b1"))
			Expect(records[0].Trigger).To(Equal(jobs.TriggerWebhook))
			Expect(f.wakes.Load()).To(BeNumerically(">=", 1))
			Expect(f.generations.Load()).To(BeZero())

			code, body := f.do(http.MethodGet, "/notifications/u1", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body["notifications"]).To(HaveLen(1))
		})
	})

	Context("token registration", func() {
		It("rejects incomplete payloads", func() {
			code, body := f.do(http.MethodPost, "/trello/save_token", map[string]string{"user_id": "u1"})
			Expect(code).To(Equal(http.StatusBadRequest))
			Expect(body).To(HaveKeyWithValue("status", "error"))
			Expect(body).To(HaveKeyWithValue("message", "user_id and trello_token are required"))
		})

		It("saves the token and maps every board", func() {
			f.provider.boards["tok-1"] = []trello.Board{{ID: "b1", Name: "Sprint"}, {ID: "b2", Name: "Roadmap"}}

			code, body := f.do(http.MethodPost, "/trello/save_token", map[string]string{"user_id": "u1", "trello_token": "tok-1"})
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("boards_mapped", BeNumerically("==", 2)))
			Expect(body["message"]).To(Equal("Trello token saved and 2 boards mapped to user u1"))

			owner, err := f.mappings.LookupOwner(ctx, "b2")
			Expect(err).NotTo(HaveOccurred())
			Expect(owner).To(Equal("u1"))
		})

		It("keeps the token when the provider is down", func() {
			f.provider.boardsErr = apperr.Transient("trello.list_boards", errors.New("timeout"))

			code, body := f.do(http.MethodPost, "/trello/save_token", map[string]string{"user_id": "u1", "trello_token": "tok-1"})
			Expect(code).To(Equal(http.StatusBadGateway))
			Expect(body).To(HaveKeyWithValue("status", "error"))

			token, err := f.tokens.Get(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("tok-1"))
		})
	})

	Context("board listing", func() {
		It("reports accounts without a token", func() {
			code, body := f.do(http.MethodGet, "/trello/boards_with_headings?user_id=ghost", nil)
			Expect(code).To(Equal(http.StatusNotFound))
			Expect(body).To(HaveKeyWithValue("message", "User not connected to Trello"))
			Expect(body["boards"]).To(BeEmpty())
		})

		It("annotates boards with generated headings and stays stable across reads", func() {
			connect("u1", "tok-1", trello.Board{ID: "b1", Name: "Sprint"}, trello.Board{ID: "b2", Name: "Roadmap"})

			code, body := f.do(http.MethodGet, "/trello/boards_with_headings?user_id=u1", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body["boards"]).To(HaveLen(2))
			for _, b := range body["boards"].([]any) {
				Expect(b).To(HaveKeyWithValue("has_generated_doc", false))
			}

			code, _ = f.do(http.MethodGet, "/workflow/generated?user_id=u1&project_id=b1", nil)
			Expect(code).To(Equal(http.StatusOK))

			_, first := f.do(http.MethodGet, "/trello/boards_with_headings?user_id=u1", nil)
			_, second := f.do(http.MethodGet, "/trello/boards_with_headings?user_id=u1", nil)
			Expect(first).To(Equal(second))

			b1 := first["boards"].([]any)[0].(map[string]any)
			Expect(b1).To(HaveKeyWithValue("id", "b1"))
			Expect(b1).To(HaveKeyWithValue("has_generated_doc", true))
			Expect(b1["previous_headings"]).To(Equal([]any{"Overview", "Risks"}))
			Expect(f.generations.Load()).To(BeEquivalentTo(1))
		})

		It("reports provider failures without caching them", func() {
			connect("u1", "tok-1", trello.Board{ID: "b1", Name: "Sprint"})
			Expect(f.mappings.Upsert(ctx, &board.BoardMapping{BoardID: "b-old", OwnerID: "u1", BoardName: "Archived"})).To(Succeed())
			f.provider.mu.Lock()
			f.provider.boardsErr = apperr.Transient("trello.list_boards", errors.New("connection refused"))
			f.provider.mu.Unlock()
			f.server.Responses.InvalidateAll()

			code, body := f.do(http.MethodGet, "/trello/boards_with_headings?user_id=u1", nil)
			Expect(code).To(Equal(http.StatusBadGateway))
			Expect(body).To(HaveKeyWithValue("status", "error"))
			Expect(body["message"]).To(HavePrefix("Failed to fetch boards: "))
			Expect(body["boards"]).To(BeEmpty())

			f.provider.mu.Lock()
			f.provider.boardsErr = nil
			f.provider.mu.Unlock()

			code, body = f.do(http.MethodGet, "/trello/boards_with_headings?user_id=u1", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("status", "success"))
			Expect(body["boards"]).To(HaveLen(1))
			Expect(body["boards"].([]any)[0]).To(HaveKeyWithValue("id", "b1"))
		})
	})

	Context("webhook registration", func() {
		It("registers once per board", func() {
			connect("u1", "tok-1", trello.Board{ID: "b1", Name: "Sprint"}, trello.Board{ID: "b2", Name: "Roadmap"})

			code, body := f.do(http.MethodPost, "/trello/webhook/register?user_id=u1", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("user_id", "u1"))
			Expect(body["results"]).To(HaveLen(2))
			Expect(body["results"].([]any)[0]).To(HaveKeyWithValue("status", "registered"))

			_, body = f.do(http.MethodPost, "/trello/webhook/register?user_id=u1", nil)
			Expect(body["results"].([]any)[0]).To(HaveKeyWithValue("status", "exists"))
			Expect(f.provider.registrations).To(HaveLen(2))
		})

		It("needs a stored token", func() {
			code, _ := f.do(http.MethodPost, "/trello/webhook/register?user_id=ghost", nil)
			Expect(code).To(Equal(http.StatusNotFound))
		})
	})

	Context("generated documents", func() {
		BeforeEach(func() {
			connect("u1", "tok-1", trello.Board{ID: "b1", Name: "Sprint"})
		})

		It("generates once and presents images as data URIs", func() {
			code, body := f.do(http.MethodGet, "/workflow/generated?user_id=u1&project_id=b1&template_name=default", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("board_name", "Sprint"))
			Expect(body).To(HaveKeyWithValue("template_name", "default"))
			Expect(body["generated_docs"]).To(ContainSubstring("## Overview"))

			diagram := body["generated_diagrams"].(map[string]any)["Overview"].(map[string]any)
			Expect(diagram["image"]).To(HavePrefix("data:image/png;base64,"))

			_, again := f.do(http.MethodGet, "/workflow/generated?user_id=u1&project_id=b1", nil)
			Expect(again["generated_docs"]).To(Equal(body["generated_docs"]))
			Expect(f.generations.Load()).To(BeEquivalentTo(1))
		})

		It("coalesces concurrent first reads into one generation", func() {
			var wg sync.WaitGroup
			docs := make([]string, 10)
			for i := range docs {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					code, body := f.do(http.MethodGet, "/workflow/generated?user_id=u1&project_id=b1", nil)
					Expect(code).To(Equal(http.StatusOK))
					docs[i] = body["generated_docs"].(string)
				}(i)
			}
			wg.Wait()

			Expect(f.generations.Load()).To(BeEquivalentTo(1))
			for _, d := range docs {
				Expect(d).To(Equal(docs[0]))
			}
		})

		It("does not cache failures", func() {
			f.genFail.Store(true)
			code, body := f.do(http.MethodGet, "/workflow/generated?user_id=u1&project_id=b1", nil)
			Expect(code).To(Equal(http.StatusBadGateway))
			Expect(body["message"]).To(ContainSubstring("model overloaded"))

			f.genFail.Store(false)
			code, _ = f.do(http.MethodGet, "/workflow/generated?user_id=u1&project_id=b1", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(f.generations.Load()).To(BeEquivalentTo(2))
		})

		It("validates the key", func() {
			code, _ := f.do(http.MethodGet, "/workflow/generated?user_id=u1", nil)
			Expect(code).To(Equal(http.StatusBadRequest))
		})

		It("lists an account's documents", func() {
			code, body := f.do(http.MethodGet, "/generated_docs/all?user_id=u1", nil)
			Expect(code).To(Equal(http.StatusNotFound))
			Expect(body).To(HaveKeyWithValue("message", "No generated documents found"))

			f.do(http.MethodGet, "/workflow/generated?user_id=u1&project_id=b1", nil)

			code, body = f.do(http.MethodGet, "/generated_docs/all?user_id=u1", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("count", BeNumerically("==", 1)))
			doc := body["documents"].([]any)[0].(map[string]any)
			Expect(doc).To(HaveKeyWithValue("project_id", "b1"))
			Expect(doc).To(HaveKeyWithValue("board_name", "Sprint"))
		})

		It("queues an API-triggered run idempotently", func() {
			req := map[string]string{"user_id": "u1", "project_id": "b1"}
			code, first := f.do(http.MethodPost, "/workflow/run", req)
			Expect(code).To(Equal(http.StatusAccepted))
			Expect(first).To(HaveKeyWithValue("status", "queued"))

			_, second := f.do(http.MethodPost, "/workflow/run", req)
			Expect(second["job_id"]).To(Equal(first["job_id"]))

			code, job := f.do(http.MethodGet, "/api/jobs/v1/generation/"+first["job_id"].(string), nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(job).To(HaveKeyWithValue("trigger", "api"))
			Expect(job).To(HaveKeyWithValue("template", "default"))
		})
	})

	Context("notifications", func() {
		It("rejects a bad limit", func() {
			code, _ := f.do(http.MethodGet, "/notifications/u1?limit=abc", nil)
			Expect(code).To(Equal(http.StatusBadRequest))
		})

		It("returns newest first within the limit", func() {
			Expect(f.mappings.Upsert(ctx, &board.BoardMapping{BoardID: "b1", OwnerID: "u1"})).To(Succeed())
			for i := 0; i < 3; i++ {
				f.do(http.MethodPost, "/pm", webhookBody("b1"))
			}
			code, body := f.do(http.MethodGet, "/notifications/u1?limit=2", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body["notifications"]).To(HaveLen(2))
		})

		It("applies a lowered server cap without a restart", func() {
			Expect(f.mappings.Upsert(ctx, &board.BoardMapping{BoardID: "b1", OwnerID: "u1"})).To(Succeed())
			for i := 0; i < 3; i++ {
				f.do(http.MethodPost, "/pm", webhookBody("b1"))
			}
			f.server.SetNotificationLimit(1)
			_, body := f.do(http.MethodGet, "/notifications/u1?limit=50", nil)
			Expect(body["notifications"]).To(HaveLen(1))

			f.server.SetNotificationLimit(0)
			_, body = f.do(http.MethodGet, "/notifications/u1", nil)
			Expect(body["notifications"]).To(HaveLen(3))
		})
	})

	Context("probes", func() {
		It("reports liveness and readiness", func() {
			code, body := f.do(http.MethodGet, "/healthz", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("status", "alive"))

			code, body = f.do(http.MethodGet, "/readyz", nil)
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("status", "ready"))
			Expect(body).To(HaveKeyWithValue("accepting", true))

			f.server.SetReady(false)
			code, body = f.do(http.MethodGet, "/readyz", nil)
			Expect(code).To(Equal(http.StatusServiceUnavailable))
			Expect(body).To(HaveKeyWithValue("accepting", false))
		})

		It("answers CORS preflight for configured origins", func() {
			req, _ := http.NewRequest(http.MethodOptions, f.http.URL+"/trello/save_token", nil)
			req.Header.Set("Origin", "http://localhost:5173")
			req.Header.Set("Access-Control-Request-Method", "POST")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(strings.TrimSpace(resp.Header.Get("Access-Control-Allow-Origin"))).To(Equal("http://localhost:5173"))
		})
	})
})

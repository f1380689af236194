package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"

	"github.com/casafin/expense-capture/internal/imaging"
)

var _ = Describe("Server", func() {
	var (
		extractor   *stubExtractor
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		extractor = &stubExtractor{result: cafeLunaResult()}
		committer := NewCommitter(newMockAPI(), newMockStore(), newMockJournal())
		service = NewService(
			imaging.NewNormalizer(imaging.DefaultConfig()),
			extractor,
			newMockStore(),
			committer,
			"MXN",
		)
		auth = BasicAuth{}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	uploadImage := func(path string, data []byte) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "receipt.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		req, err := http.NewRequest("POST", ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("handleStartCapture", func() {
		When("extraction succeeds", func() {
			It("should return status Created with the review view", func() {
				resp := uploadImage("/api/captures", receiptPNG())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("application/json"))

				var view View
				Expect(json.NewDecoder(resp.Body).Decode(&view)).To(Succeed())
				Expect(view.State).To(Equal(StateReview))
				Expect(view.Draft.Description).To(Equal("Cafe Luna"))
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				extractor.err = io.ErrUnexpectedEOF
			})

			It("should return status Unprocessable Entity with the session view", func() {
				resp := uploadImage("/api/captures", receiptPNG())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

				var view View
				Expect(json.NewDecoder(resp.Body).Decode(&view)).To(Succeed())
				Expect(view.State).To(Equal(StateCapturing))
				Expect(view.Error).To(ContainSubstring("could not read receipt"))
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/captures", "application/json", bytes.NewBufferString("{}"))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleStartManual", func() {
		It("should return status Created with a blank draft in review", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/captures/manual", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var view View
			Expect(json.NewDecoder(resp.Body).Decode(&view)).To(Succeed())
			Expect(view.State).To(Equal(StateReview))
			Expect(view.Draft.Currency).To(Equal("MXN"))
		})
	})

	Describe("handleGetSession", func() {
		When("the session exists", func() {
			It("should return its snapshot", func() {
				session := service.Manual()
				resp, err := http.Get(ghttpServer.URL() + "/api/captures/" + session.View().ID.String())
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		When("the session does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/captures/3f6f2a8e-1f9e-4c1d-8f08-0f4f7b4db7b1")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		When("the id is not a UUID", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/captures/not-a-uuid")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleUpdateDraft", func() {
		When("the session is past review", func() {
			It("should return status Conflict", func() {
				session := service.Manual()
				amount := decimal.NewFromFloat(10)
				_, err := service.UpdateDraft(session.View().ID, DraftUpdate{Amount: &amount})
				Expect(err).NotTo(HaveOccurred())
				_, err = service.Confirm(context.Background(), session.View().ID)
				Expect(err).NotTo(HaveOccurred())

				body := bytes.NewBufferString(`{"description":"late edit"}`)
				req, err := http.NewRequest("PATCH", ghttpServer.URL()+"/api/captures/"+session.View().ID.String()+"/draft", body)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			})
		})
	})

	Describe("handleConfirm", func() {
		When("the draft is invalid", func() {
			It("should return status Bad Request", func() {
				session := service.Manual() // zero amount

				resp, err := http.Post(ghttpServer.URL()+"/api/captures/"+session.View().ID.String()+"/confirm", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleCancel", func() {
		It("should return status No Content", func() {
			session := service.Manual()

			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/captures/"+session.View().ID.String(), nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			server = NewServerWithMux(service, auth, http.NewServeMux())
			setupServer()
		})

		When("credentials are missing", func() {
			It("should return status Unauthorized", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/captures/manual", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			})
		})

		When("credentials are correct", func() {
			It("should allow the request", func() {
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/captures/manual", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:pass")))

				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			})
		})

		When("credentials are wrong", func() {
			It("should return status Unauthorized", func() {
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/captures/manual", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:wrong")))

				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})
	})
})

package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nlevitt/outbackcdx/metrics"
	"github.com/nlevitt/outbackcdx/server"
	"github.com/nlevitt/outbackcdx/store"
)

var _ = Describe("Server", func() {
	var (
		dir string
		st  *store.Store
		srv *httptest.Server
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "outbackcdx-server-*")
		Expect(err).NotTo(HaveOccurred())
		st, err = store.Open(dir, nil)
		Expect(err).NotTo(HaveOccurred())
		m := metrics.New(prometheus.NewRegistry())
		srv = httptest.NewServer(server.New(st, m).Handler())
	})

	AfterEach(func() {
		srv.Close()
		Expect(st.Close()).To(Succeed())
		os.RemoveAll(dir)
	})

	It("ingests then queries a capture over HTTP", func() {
		body := "- - 20200101000000 http://example.org/ text/html 200 sha1:AAA - - 1234 5678 file.warc.gz"
		resp, err := http.Post(srv.URL+"/c", "text/plain", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp, err = http.Get(srv.URL + "/c?url=" + "http%3A%2F%2Fexample.org%2F")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		data, _ := io.ReadAll(resp.Body)
		Expect(string(data)).To(ContainSubstring("http://example.org/"))
	})

	It("returns 404 querying an unknown collection", func() {
		resp, err := http.Get(srv.URL + "/nosuch?url=http://example.org/")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("returns 400 on a malformed ingest line", func() {
		resp, err := http.Post(srv.URL+"/c", "text/plain", strings.NewReader("only five fields here please"))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("creates a policy and a rule, then hides a capture unless accessPoint matches", func() {
		policyBody := `{"name":"Staff","accessPoints":["staff"]}`
		resp, err := http.Post(srv.URL+"/c/access/policies", "application/json", strings.NewReader(policyBody))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var created struct {
			ID int64 `json:"id"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&created)).To(Succeed())

		ruleBody := `{"policyId":` + strconv.FormatInt(created.ID, 10) + `,"surts":["(org,example,)/"]}`
		resp, err = http.Post(srv.URL+"/c/access/rules", "application/json", strings.NewReader(ruleBody))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body := "- - 20200101000000 http://example.org/sub text/html 200 sha1:AAA - - 1234 5678 file.warc.gz"
		resp, err = http.Post(srv.URL+"/c", "text/plain", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp, err = http.Get(srv.URL + "/c?url=http%3A%2F%2Fexample.org%2Fsub&accessPoint=public")
		Expect(err).NotTo(HaveOccurred())
		data, _ := io.ReadAll(resp.Body)
		Expect(string(data)).To(BeEmpty())

		resp, err = http.Get(srv.URL + "/c?url=http%3A%2F%2Fexample.org%2Fsub&accessPoint=staff")
		Expect(err).NotTo(HaveOccurred())
		data, _ = io.ReadAll(resp.Body)
		Expect(string(data)).To(ContainSubstring("example.org"))
	})
})

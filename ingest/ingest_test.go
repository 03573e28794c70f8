package ingest_test

import (
	"os"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nlevitt/outbackcdx/cdx"
	"github.com/nlevitt/outbackcdx/ingest"
	"github.com/nlevitt/outbackcdx/store"
)

func drain(s store.CaptureStream) []cdx.Capture {
	defer s.Close()
	var out []cdx.Capture
	for {
		c, ok, err := s.Next()
		Expect(err).NotTo(HaveOccurred())
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

var _ = Describe("Ingest", func() {
	var (
		dir string
		st  *store.Store
		idx *store.Index
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "outbackcdx-ingest-*")
		Expect(err).NotTo(HaveOccurred())
		st, err = store.Open(dir, nil)
		Expect(err).NotTo(HaveOccurred())
		idx, err = st.GetIndex("c", true)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(st.Close()).To(Succeed())
		os.RemoveAll(dir)
	})

	It("ignores a leading CDX header line and ingests the rest", func() {
		body := strings.Join([]string{
			" CDX N b a m s k r M S V g",
			"- - 20200101000000 http://example.org/ text/html 200 sha1:AAA - - 1234 5678 file.warc.gz",
		}, "\n")
		res, err := ingest.Ingest(idx, strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Added).To(Equal(1))

		got := drain(idx.Query("(org,example,)/"))
		Expect(got).To(HaveLen(1))
		Expect(got[0].Original).To(Equal("http://example.org/"))
	})

	It("resolves an @alias directive against a subsequently queried capture", func() {
		body := strings.Join([]string{
			"@alias http://old.example.org/ http://new.example.org/",
			"- - 20200101000000 http://new.example.org/ text/html 200 sha1:AAA - - 1234 5678 file.warc.gz",
		}, "\n")
		res, err := ingest.Ingest(idx, strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Added).To(Equal(2))

		got := drain(idx.Query("(org,example,old,)/"))
		Expect(got).To(HaveLen(1))
		Expect(got[0].Urlkey).To(Equal("(org,example,new,)/"))
	})

	It("aborts the whole batch on a malformed line and commits nothing", func() {
		body := strings.Join([]string{
			"- - 20200101000000 http://example.org/ text/html 200 sha1:AAA - - 1234 5678 file.warc.gz",
			"only five fields here please",
		}, "\n")
		_, err := ingest.Ingest(idx, strings.NewReader(body))
		Expect(err).To(HaveOccurred())
		var mr *cdx.MalformedRecord
		Expect(err).To(BeAssignableToTypeOf(mr))

		got := drain(idx.Query("(org,example,)/"))
		Expect(got).To(BeEmpty())
	})

	It("rejects an ingest line with an unparseable URL", func() {
		body := "- - 20200101000000 not-a-url text/html 200 sha1:AAA - - 1234 5678 file.warc.gz"
		_, err := ingest.Ingest(idx, strings.NewReader(body))
		Expect(err).To(HaveOccurred())
	})
})

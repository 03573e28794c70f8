package store_test

import (
	"os"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nlevitt/outbackcdx/cdx"
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

var _ = Describe("Store", func() {
	var (
		dir string
		st  *store.Store
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "outbackcdx-store-*")
		Expect(err).NotTo(HaveOccurred())
		st, err = store.Open(dir, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(st.Close()).To(Succeed())
		Expect(st.Close()).To(Succeed()) // idempotent
		os.RemoveAll(dir)
	})

	It("returns nil for an unknown collection when createIfMissing is false", func() {
		idx, err := st.GetIndex("c", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx).To(BeNil())
		Expect(st.ListCollections()).To(BeEmpty())
	})

	It("ingests and echoes a single capture", func() {
		idx, err := st.GetIndex("c", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.ListCollections()).To(Equal([]string{"c"}))

		b := idx.BeginUpdate()
		b.PutCapture(cdx.Capture{
			Urlkey: "(org,example)/", Timestamp: 20200101000000,
			Original: "http://example.org/", Mimetype: "text/html",
			Status: 200, Digest: "sha1:AAA", Length: 1234,
			CompressedOffset: 5678, File: "file.warc.gz",
		})
		Expect(b.Commit()).To(Succeed())

		got := drain(idx.Query("(org,example)/"))
		Expect(got).To(HaveLen(1))
		Expect(got[0].Original).To(Equal("http://example.org/"))
	})

	It("orders same-URL captures ascending by timestamp", func() {
		idx, _ := st.GetIndex("c", true)
		b := idx.BeginUpdate()
		b.PutCapture(cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200102000000, File: "b.warc.gz"})
		b.PutCapture(cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200101000000, File: "a.warc.gz"})
		Expect(b.Commit()).To(Succeed())

		got := drain(idx.Query("(org,example)/"))
		Expect(got).To(HaveLen(2))
		Expect(got[0].Timestamp).To(Equal(int64(20200101000000)))
		Expect(got[1].Timestamp).To(Equal(int64(20200102000000)))
	})

	It("resolves a one-hop alias", func() {
		idx, _ := st.GetIndex("c", true)
		b := idx.BeginUpdate()
		b.PutAlias("(org,old)/", "(org,new)/")
		b.PutCapture(cdx.Capture{Urlkey: "(org,new)/", Timestamp: 20200101000000, File: "a.warc.gz"})
		Expect(b.Commit()).To(Succeed())

		got := drain(idx.Query("(org,old)/"))
		Expect(got).To(HaveLen(1))
		Expect(got[0].Urlkey).To(Equal("(org,new)/"))
	})

	It("treats a self-loop alias as no alias at all", func() {
		idx, _ := st.GetIndex("c", true)
		b := idx.BeginUpdate()
		b.PutAlias("(org,example)/", "(org,example)/")
		b.PutCapture(cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200101000000, File: "a.warc.gz"})
		Expect(b.Commit()).To(Succeed())

		got := drain(idx.Query("(org,example)/"))
		Expect(got).To(HaveLen(1))
	})

	It("discards a released batch entirely", func() {
		idx, _ := st.GetIndex("c", true)
		b := idx.BeginUpdate()
		b.PutCapture(cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200101000000, File: "a.warc.gz"})
		b.Release()

		got := drain(idx.Query("(org,example)/"))
		Expect(got).To(BeEmpty())
	})

	It("never shows a capture from a different urlkey that sorts adjacently", func() {
		idx, _ := st.GetIndex("c", true)
		b := idx.BeginUpdate()
		b.PutCapture(cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200101000000, File: "a.warc.gz"})
		b.PutCapture(cdx.Capture{Urlkey: "(org,example)/path", Timestamp: 20200101000000, File: "b.warc.gz"})
		Expect(b.Commit()).To(Succeed())

		got := drain(idx.Query("(org,example)/"))
		Expect(got).To(HaveLen(1))
		Expect(got[0].File).To(Equal("a.warc.gz"))
	})

	It("applies the store-level static filter to every index", func() {
		Expect(st.Close()).To(Succeed())
		dir2, _ := os.MkdirTemp("", "outbackcdx-store-filtered-*")
		defer os.RemoveAll(dir2)
		filtered, err := store.Open(dir2, func(c cdx.Capture) bool { return c.Status != 404 })
		Expect(err).NotTo(HaveOccurred())
		defer filtered.Close()

		idx, _ := filtered.GetIndex("c", true)
		b := idx.BeginUpdate()
		b.PutCapture(cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200101000000, Status: 200, File: "a.warc.gz"})
		b.PutCapture(cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200102000000, Status: 404, File: "b.warc.gz"})
		Expect(b.Commit()).To(Succeed())

		got := drain(idx.Query("(org,example)/"))
		Expect(got).To(HaveLen(1))
		Expect(got[0].Status).To(Equal(200))
	})
})

package access_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nlevitt/outbackcdx/access"
	"github.com/nlevitt/outbackcdx/cdx"
	"github.com/nlevitt/outbackcdx/store"
)

func openAccessStore(st *store.Store, collection string) *access.Store {
	s, err := access.Open(st.Family(collection, store.TagRule), st.Family(collection, store.TagPolicy))
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("Access", func() {
	var (
		dir string
		st  *store.Store
		as  *access.Store
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "outbackcdx-access-*")
		Expect(err).NotTo(HaveOccurred())
		st, err = store.Open(dir, nil)
		Expect(err).NotTo(HaveOccurred())
		as = openAccessStore(st, "c")
	})

	AfterEach(func() {
		Expect(st.Close()).To(Succeed())
		os.RemoveAll(dir)
	})

	It("seeds the three default policies on first open", func() {
		policies, err := as.ListPolicies()
		Expect(err).NotTo(HaveOccurred())
		names := map[string]bool{}
		for _, p := range policies {
			names[p.Name] = true
		}
		Expect(names).To(HaveKey("Public"))
		Expect(names).To(HaveKey("Staff Only"))
		Expect(names).To(HaveKey("No Access"))
	})

	It("makes a capture visible when no rule matches it", func() {
		f := as.Filter("public", time.Now())
		visible := f(cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200101000000})
		Expect(visible).To(BeTrue())
	})

	It("hides a matched capture unless the rule's policy allows the access point", func() {
		policies, _ := as.ListPolicies()
		var staffOnly access.Policy
		for _, p := range policies {
			if p.Name == "Staff Only" {
				staffOnly = p
			}
		}
		Expect(staffOnly.Name).To(Equal("Staff Only"))

		_, err := as.PutRule(access.Rule{PolicyID: staffOnly.ID, Surts: []string{"(org,example)/"}})
		Expect(err).NotTo(HaveOccurred())

		c := cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200101000000}
		Expect(as.Filter("public", time.Now())(c)).To(BeFalse())
		Expect(as.Filter("staff", time.Now())(c)).To(BeTrue())
	})

	It("prefers the most specific matching rule's prefix", func() {
		policies, _ := as.ListPolicies()
		var noAccess, public access.Policy
		for _, p := range policies {
			switch p.Name {
			case "No Access":
				noAccess = p
			case "Public":
				public = p
			}
		}

		_, err := as.PutRule(access.Rule{PolicyID: noAccess.ID, Surts: []string{"(org,"}})
		Expect(err).NotTo(HaveOccurred())
		_, err = as.PutRule(access.Rule{PolicyID: public.ID, Surts: []string{"(org,example)/"}})
		Expect(err).NotTo(HaveOccurred())

		blocked := cdx.Capture{Urlkey: "(org,other)/", Timestamp: 20200101000000}
		allowed := cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200101000000}

		Expect(as.Filter("public", time.Now())(blocked)).To(BeFalse())
		Expect(as.Filter("public", time.Now())(allowed)).To(BeTrue())
	})

	It("only applies a rule within its capture-date range", func() {
		policies, _ := as.ListPolicies()
		var noAccess access.Policy
		for _, p := range policies {
			if p.Name == "No Access" {
				noAccess = p
			}
		}
		from := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
		_, err := as.PutRule(access.Rule{
			PolicyID: noAccess.ID,
			Surts:    []string{"(org,example)/"},
			Captured: &access.DateRange{From: &from, To: &to},
		})
		Expect(err).NotTo(HaveOccurred())

		inRange := cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20150601000000}
		outOfRange := cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200101000000}

		Expect(as.Filter("public", time.Now())(inRange)).To(BeFalse())
		Expect(as.Filter("public", time.Now())(outOfRange)).To(BeTrue())
	})

	It("removes a rule's effect after DeleteRule", func() {
		policies, _ := as.ListPolicies()
		var noAccess access.Policy
		for _, p := range policies {
			if p.Name == "No Access" {
				noAccess = p
			}
		}
		id, err := as.PutRule(access.Rule{PolicyID: noAccess.ID, Surts: []string{"(org,example)/"}})
		Expect(err).NotTo(HaveOccurred())

		c := cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200101000000}
		Expect(as.Filter("public", time.Now())(c)).To(BeFalse())

		ok, err := as.DeleteRule(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(as.Filter("public", time.Now())(c)).To(BeTrue())
	})

	It("short-circuits ComposeFilters at the first rejecting filter", func() {
		always := func(cdx.Capture) bool { return true }
		never := func(cdx.Capture) bool { return false }
		c := cdx.Capture{Urlkey: "(org,example)/"}

		Expect(access.ComposeFilters()(c)).To(BeTrue())
		Expect(access.ComposeFilters(always, always)(c)).To(BeTrue())
		Expect(access.ComposeFilters(always, never, always)(c)).To(BeFalse())
		Expect(access.ComposeFilters(nil, always)(c)).To(BeTrue())
	})

	It("rejects a rule referencing an unknown policy", func() {
		_, err := as.PutRule(access.Rule{PolicyID: 99999, Surts: []string{"(org,example)/"}})
		Expect(err).To(MatchError(access.ErrUnknownPolicy))
	})

	It("reloads persisted rules and policies across a reopen", func() {
		policies, _ := as.ListPolicies()
		var noAccess access.Policy
		for _, p := range policies {
			if p.Name == "No Access" {
				noAccess = p
			}
		}
		_, err := as.PutRule(access.Rule{PolicyID: noAccess.ID, Surts: []string{"(org,example)/"}})
		Expect(err).NotTo(HaveOccurred())

		reopened := openAccessStore(st, "c")
		c := cdx.Capture{Urlkey: "(org,example)/", Timestamp: 20200101000000}
		Expect(reopened.Filter("public", time.Now())(c)).To(BeFalse())

		reloadedPolicies, err := reopened.ListPolicies()
		Expect(err).NotTo(HaveOccurred())
		Expect(reloadedPolicies).To(HaveLen(3))
	})
})

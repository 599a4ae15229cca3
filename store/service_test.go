package store

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("service properties", func() {
	var s *Store

	BeforeEach(func() {
		s = newTestStore()
	})

	AfterEach(func() {
		Expect(s.Close()).To(Succeed())
	})

	It("synthesizes defaults for an account that never set properties", func() {
		svc, err := s.GetServiceProperties("", "acct")
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.CORS.Val).To(BeEmpty())
		Expect(svc.Logging.Val).To(BeNil())
		Expect(svc.HourMetrics.Val).To(BeNil())
		Expect(svc.StaticWebsite.Val).To(BeNil())
		Expect(svc.DeleteRetentionPolicy.Val).To(BeNil())
	})

	It("persists and round-trips a full set of properties, then replaces them wholesale", func() {
		cors := []CORSRule{{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET"}, MaxAgeInSeconds: 60}}
		logging := &LoggingProperties{Version: "1.0", Read: true}

		_, err := s.SetServiceProperties("", "acct", cors, logging, nil, nil, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		svc, err := s.GetServiceProperties("", "acct")
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.CORS.Val).To(Equal(cors))
		Expect(svc.Logging.Val).To(Equal(logging))

		// second Set replaces the whole document, dropping the prior CORS rules.
		_, err = s.SetServiceProperties("", "acct", nil, nil, nil, nil, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		svc, err = s.GetServiceProperties("", "acct")
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.CORS.Val).To(BeEmpty())
		Expect(svc.Logging.Val).To(BeNil())
	})

	It("reaches the CORS matcher through the persisted service properties", func() {
		cors := []CORSRule{{AllowedOrigins: []string{"https://example.com"}, AllowedMethods: []string{"GET"}}}
		_, err := s.SetServiceProperties("", "acct", cors, nil, nil, nil, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		rule, ok, err := s.MatchServiceCORS("", "acct", PreflightRequest{Origin: "https://example.com", Method: "GET"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(rule).To(Equal(cors[0]))

		_, ok, err = s.MatchServiceCORS("", "acct", PreflightRequest{Origin: "https://other.com", Method: "GET"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})
})

package session

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Controller", func() {
	var (
		f      *fixture
		c      *Controller
		ctx    context.Context
		cancel context.CancelFunc
		runErr chan error
	)

	BeforeEach(func() {
		f = newFixture(mainMenu, results, blankDateDetail, datedDetail)
	})

	JustBeforeEach(func() {
		ctx = context.Background()
		var runCtx context.Context
		runCtx, cancel = context.WithCancel(ctx)
		c = NewController(f.deps)
		runErr = make(chan error, 1)
		go func() {
			runErr <- c.Run(runCtx)
		}()
	})

	AfterEach(func() {
		cancel()
		Eventually(runErr).Should(Receive(MatchError(context.Canceled)))
	})

	When("no session has been started", func() {
		It("should return ErrNoSession", func() {
			_, err := c.Status(ctx)
			Expect(errors.Is(err, ErrNoSession)).To(BeTrue())

			_, _, err = c.Advance(ctx)
			Expect(errors.Is(err, ErrNoSession)).To(BeTrue())

			_, err = c.SetDamaged(ctx, true)
			Expect(errors.Is(err, ErrNoSession)).To(BeTrue())
		})
	})

	When("a session is started", func() {
		var (
			status Status
			err    error
		)

		JustBeforeEach(func() {
			status, err = c.Start(ctx, "RMA1234567", false)
		})

		It("should return its status", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(IteratingSerials))
			Expect(status.Serials).To(Equal(2))
		})

		It("should refuse a second session", func() {
			_, err := c.Start(ctx, "RMA7654321", false)
			Expect(errors.Is(err, ErrSessionActive)).To(BeTrue())
		})

		It("should drive the session to the end", func() {
			result, _, err := c.Advance(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Serial).To(Equal("1111111111"))

			_, err = c.SetDamaged(ctx, true)
			Expect(err).NotTo(HaveOccurred())

			result, status, err := c.Advance(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Damaged).To(BeTrue())
			Expect(status.Processed).To(Equal(2))

			result, status, err = c.Advance(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeNil())
			Expect(status.State).To(Equal(Finished))
		})

		When("the session has finished", func() {
			BeforeEach(func() {
				f = newFixture(mainMenu, results, blankDateDetail, datedDetail,
					mainMenu, results, blankDateDetail, datedDetail)
			})

			It("should leave the damaged choice to the next session", func() {
				for range 3 {
					_, _, err := c.Advance(ctx)
					Expect(err).NotTo(HaveOccurred())
				}

				status, err := c.SetDamaged(ctx, true)
				Expect(errors.Is(err, ErrSessionEnded)).To(BeTrue())
				Expect(status.State).To(Equal(Finished))
				Expect(status.Damaged).To(BeFalse())

				status, err = c.Start(ctx, "RMA1234567", true)
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Damaged).To(BeTrue())
			})
		})

		It("should allow a new session once aborted", func() {
			status, err := c.Abort(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(Aborted))

			_, err = c.Start(ctx, "RMA1234567", false)
			Expect(errors.Is(err, ErrSessionActive)).To(BeFalse())
		})
	})

	When("the start fails", func() {
		BeforeEach(func() {
			f = newFixture(results)
		})

		It("should keep the aborted session for display", func() {
			_, err := c.Start(ctx, "RMA1234567", false)
			Expect(errors.Is(err, ErrNotInExpectedScreen)).To(BeTrue())

			status, err := c.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(Aborted))
		})
	})

	When("the RMA id is malformed", func() {
		It("should not replace the current session", func() {
			_, err := c.Start(ctx, "bogus", false)
			Expect(err).To(HaveOccurred())

			_, err = c.Status(ctx)
			Expect(errors.Is(err, ErrNoSession)).To(BeTrue())
		})
	})

	When("the controller has stopped", func() {
		It("should return ErrControllerStopped", func() {
			cancel()
			Eventually(func() error {
				_, err := c.Status(ctx)
				return err
			}).Should(MatchError(ErrControllerStopped))
		})
	})
})

package daemon_test

import (
	"context"
	"errors"
	"math/big"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/GPTx-global/flightsurety/oracle/chain/chaintest"
	"github.com/GPTx-global/flightsurety/oracle/config"
	"github.com/GPTx-global/flightsurety/oracle/daemon"
	"github.com/GPTx-global/flightsurety/oracle/retry"
	"github.com/GPTx-global/flightsurety/oracle/status"
	"github.com/GPTx-global/flightsurety/oracle/telemetry"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

var (
	appAddress = "0xf25186B5081Ff5cE73482AD761DB0eB0d25abfBF"
	airline    = common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732")

	o1 = common.HexToAddress("0x01")
	o2 = common.HexToAddress("0x02")
	o3 = common.HexToAddress("0x03")
)

func request(index uint8) types.StatusRequest {
	return types.StatusRequest{Index: index, Airline: airline, Flight: "ND1309", Timestamp: 1_700_000_000}
}

func submitters(subs []types.StatusResponse) []common.Address {
	out := make([]common.Address, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.Oracle)
	}
	return out
}

var _ = Describe("Daemon", func() {
	var (
		cfg      *config.Config
		gateway  *chaintest.Gateway
		accounts []common.Address
		d        *daemon.Daemon
		cancel   context.CancelFunc
		done     chan error
	)

	start := func() {
		var err error
		d, err = daemon.NewWithGateway(cfg, gateway, accounts, status.NewGenerator(nil, 1))
		Expect(err).NotTo(HaveOccurred())
		d.WithSubscribeRetry(&retry.RetryConfig{BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2})

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- d.Run(ctx)
		}()

		Eventually(d.Registered()).Should(BeClosed())
	}

	emit := func(req types.StatusRequest) {
		Eventually(func() int { return gateway.EmitRequest(req) }).Should(Equal(1))
	}

	BeforeEach(func() {
		cfg = config.SetForTesting("", "http://localhost:8545", appAddress, 3)
		cfg.API.Enabled = false

		gateway = chaintest.New()
		gateway.SetIndexes(o1, types.Indexes{2, 5, 9})
		gateway.SetIndexes(o2, types.Indexes{2, 4, 7})
		gateway.SetIndexes(o3, types.Indexes{1, 5, 9})
		accounts = []common.Address{o1, o2, o3}
	})

	AfterEach(func() {
		if cancel != nil {
			cancel()
			Eventually(done, 5*time.Second).Should(Receive(BeNil()))
			Expect(gateway.Closed()).To(BeTrue())
			cancel = nil
		}
	})

	Context("with three registered oracles", func() {
		BeforeEach(func() {
			start()
		})

		It("registers every account with the indexes the ledger returned", func() {
			Expect(d.Registry().Len()).To(Equal(3))
			oracle, ok := d.Registry().Get(o2)
			Expect(ok).To(BeTrue())
			Expect(oracle.Indexes).To(Equal(types.Indexes{2, 4, 7}))
		})

		It("submits once per eligible oracle for a shared index", func() {
			emit(request(5))

			Eventually(gateway.Submissions).Should(HaveLen(2))
			Consistently(gateway.Submissions, 100*time.Millisecond).Should(HaveLen(2))

			subs := gateway.Submissions()
			Expect(submitters(subs)).To(ConsistOf(o1, o3))
			for _, s := range subs {
				Expect(s.Index).To(Equal(uint8(5)))
				Expect(s.Flight).To(Equal("ND1309"))
				Expect(s.Airline).To(Equal(airline))
				Expect(s.StatusCode.Valid()).To(BeTrue())
			}
		})

		It("submits nothing when no oracle holds the index", func() {
			Expect(d.ProcessRequest(context.Background(), request(3))).To(BeEmpty())

			emit(request(3))
			Consistently(gateway.Submissions, 100*time.Millisecond).Should(BeEmpty())
			Eventually(func() float64 {
				return telemetry.Counter(d.Metrics(), telemetry.KeyRequestReceived)
			}).Should(Equal(float64(2)))
		})

		It("keeps submitting for siblings when one oracle fails", func() {
			gateway.FailSubmission(o1, types.ErrInsufficientFunds)

			results := d.ProcessRequest(context.Background(), request(5))
			Expect(results).To(HaveLen(2))
			Expect(submitters(gateway.Submissions())).To(ConsistOf(o3))
			Expect(telemetry.Counter(d.Metrics(), telemetry.KeySubmissionFailure)).To(Equal(float64(1)))
			Expect(telemetry.Counter(d.Metrics(), telemetry.KeySubmissionSuccess)).To(Equal(float64(1)))
		})

		It("observes flight status decisions without submitting", func() {
			info := types.FlightStatusInfo{Airline: airline, Flight: "ND1309", Timestamp: 1_700_000_000, Status: types.StatusLateAirline}
			Eventually(func() int { return gateway.EmitFlightStatus(info) }).Should(Equal(1))

			Eventually(func() float64 {
				return telemetry.Counter(d.Metrics(), telemetry.KeyStatusConsensus)
			}).Should(Equal(float64(1)))
			Expect(gateway.Submissions()).To(BeEmpty())
		})

		It("keeps listening after the subscription drops", func() {
			emit(request(4))
			Eventually(gateway.Submissions).Should(HaveLen(1))

			gateway.BreakSubscriptions(errors.New("websocket: close 1006"))

			emit(request(1))
			Eventually(gateway.Submissions).Should(HaveLen(2))
			Expect(submitters(gateway.Submissions())).To(ConsistOf(o2, o3))
		})

		It("reports healthy once the registry is populated", func() {
			d.Checker().RunChecks(context.Background())
			Expect(d.Checker().IsHealthy()).To(BeTrue())
		})
	})

	Context("when the API listen address is taken", func() {
		var taken net.Listener

		BeforeEach(func() {
			var err error
			taken, err = net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(taken.Close)

			cfg.API.Enabled = true
			cfg.API.Listen = taken.Addr().String()
			start()
		})

		It("keeps answering requests without the API", func() {
			Consistently(done, 200*time.Millisecond).ShouldNot(Receive())

			emit(request(5))
			Eventually(gateway.Submissions).Should(HaveLen(2))
			Expect(submitters(gateway.Submissions())).To(ConsistOf(o1, o3))
		})
	})

	Context("when some registrations fail", func() {
		BeforeEach(func() {
			gateway.FailRegistration(o1, types.ErrInsufficientFunds)
			gateway.SetIndexes(o3, types.Indexes{1, 5, 42})
			start()
		})

		It("leaves the failed accounts out", func() {
			Expect(d.Registry().Len()).To(Equal(1))
			_, ok := d.Registry().Get(o1)
			Expect(ok).To(BeFalse())
			_, ok = d.Registry().Get(o3)
			Expect(ok).To(BeFalse())
			Expect(telemetry.Counter(d.Metrics(), telemetry.KeyRegistrationFailure)).To(Equal(float64(2)))
		})

		It("never answers for an unregistered account", func() {
			Expect(d.ProcessRequest(context.Background(), request(5))).To(BeEmpty())
			Expect(gateway.Submissions()).To(BeEmpty())
		})
	})

	Context("with an empty registry", func() {
		BeforeEach(func() {
			accounts = nil
			start()
		})

		It("makes no submission and raises no error", func() {
			Expect(d.ProcessRequest(context.Background(), request(5))).To(BeEmpty())
			emit(request(5))
			Consistently(gateway.Submissions, 100*time.Millisecond).Should(BeEmpty())

			d.Checker().RunChecks(context.Background())
			Expect(d.Checker().IsHealthy()).To(BeFalse())
		})
	})

	Context("when the stake is below the registration fee", func() {
		BeforeEach(func() {
			cfg.Oracle.StakeWei = "1000"
			start()
		})

		It("still starts and the ledger rejects every registration", func() {
			Expect(d.Registry().Len()).To(BeZero())
			Expect(gateway.Registrations()).To(HaveLen(3))
		})
	})

	Context("when the ledger fee is above the configured stake", func() {
		BeforeEach(func() {
			gateway.SetRegistrationFee(new(big.Int).Mul(big.NewInt(2), big.NewInt(params.Ether)))
			start()
		})

		It("keeps running with no oracle registered", func() {
			Expect(d.Registry().Len()).To(BeZero())
			Expect(gateway.Registrations()).To(HaveLen(3))
			Expect(telemetry.Counter(d.Metrics(), telemetry.KeyRegistrationFailure)).To(Equal(float64(3)))

			emit(request(5))
			Consistently(gateway.Submissions, 100*time.Millisecond).Should(BeEmpty())
		})
	})

	It("rejects an invalid stake before starting", func() {
		cfg.Oracle.StakeWei = "lots"
		_, err := daemon.NewWithGateway(cfg, gateway, accounts, status.Fixed(types.StatusOnTime))
		Expect(err).To(MatchError(ContainSubstring("stake_wei")))
	})
})

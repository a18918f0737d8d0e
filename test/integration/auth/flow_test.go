// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/caregate/caregate/internal/audit"
	"github.com/caregate/caregate/internal/auth"
	"github.com/caregate/caregate/internal/config"
	"github.com/caregate/caregate/internal/logging"
	"github.com/caregate/caregate/internal/observability"
)

// memoryDirectory is an in-memory auth.Directory for exercising the full
// authentication stack without a database. Safe for concurrent use.
type memoryDirectory struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.UserRecord
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{users: make(map[ulid.ULID]*auth.UserRecord)}
}

func (d *memoryDirectory) add(user *auth.UserRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *memoryDirectory) FindByUsername(_ context.Context, username string) (*auth.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Username, username) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (d *memoryDirectory) FindByID(_ context.Context, id ulid.ULID) (*auth.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (d *memoryDirectory) UpdateLastLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (d *memoryDirectory) UpdatePasswordHash(_ context.Context, id ulid.ULID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (d *memoryDirectory) FindAssignedClinician(_ context.Context, patientID ulid.ULID) (ulid.ULID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[patientID]
	if !ok || u.AssignedClinicianID == nil {
		return ulid.ULID{}, auth.ErrNotFound
	}
	return *u.AssignedClinicianID, nil
}

var _ = Describe("Authentication and access flow", func() {
	var (
		ctx       context.Context
		cfg       config.Config
		directory *memoryDirectory
		hasher    *auth.Argon2idHasher
		svc       *auth.Service
		sink      *audit.SlogSink
		auditBuf  *bytes.Buffer
		obsServer *observability.Server

		admin     *auth.UserRecord
		clinician *auth.UserRecord
		patientA  *auth.UserRecord
		patientB  *auth.UserRecord
	)

	addUser := func(username, password string, role auth.Role) *auth.UserRecord {
		hash, err := hasher.Hash(password)
		Expect(err).NotTo(HaveOccurred())
		user := &auth.UserRecord{
			ID:           ulid.Make(),
			Username:     username,
			PasswordHash: hash,
			Role:         role,
			Active:       true,
		}
		directory.add(user)
		return user
	}

	BeforeEach(func() {
		ctx = context.Background()
		directory = newMemoryDirectory()
		hasher = auth.NewArgon2idHasher()

		admin = addUser("admin", "Admin@123", auth.RoleAdmin)
		clinician = addUser("drgrey", "Rounds@42x", auth.RoleClinician)
		patientA = addUser("pat_a", "Patient@1", auth.RolePatient)
		patientB = addUser("pat_b", "Patient@2", auth.RolePatient)
		patientA.AssignedClinicianID = &clinician.ID

		// Assemble the stack the way a deployment would: every knob comes
		// from the resolved configuration.
		cfg = config.Default()
		cfg.MetricsAddr = "127.0.0.1:0"
		cfg.AuditSources = []string{"auth.*"}
		Expect(cfg.Validate()).To(Succeed())

		auditBuf = &bytes.Buffer{}
		var err error
		sink, err = audit.NewSlogSink(
			logging.Setup("caregate", "itest", cfg.LogFormat, auditBuf),
			cfg.AuditSources...,
		)
		Expect(err).NotTo(HaveOccurred())

		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool { return true })
		_, err = obsServer.Start()
		Expect(err).NotTo(HaveOccurred())

		evaluator, err := auth.NewEvaluator(directory, sink, cfg.DirectoryTimeout())
		Expect(err).NotTo(HaveOccurred())

		svc, err = auth.NewService(directory, hasher, auth.NewSessionStore(), evaluator, sink, nil, auth.Config{
			SessionTimeout:    cfg.SessionTimeout(),
			DirectoryTimeout:  cfg.DirectoryTimeout(),
			MinPasswordLength: cfg.PasswordMinLength,
		})
		Expect(err).NotTo(HaveOccurred())
		svc.SetMetrics(obsServer.Metrics())
		svc.SetOrigin(auth.Origin{ClientAddr: "10.40.0.12", Hostname: "ward-terminal-3"})
	})

	AfterEach(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(obsServer.Stop(stopCtx)).To(Succeed())
	})

	Describe("Login", func() {
		It("authenticates the bootstrap admin", func() {
			user, err := svc.Login(ctx, "admin", "Admin@123")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Role).To(Equal(auth.RoleAdmin))
			Expect(svc.IsAuthenticated()).To(BeTrue())
			Expect(user.LastLoginAt).NotTo(BeNil())
		})

		It("rejects unknown users and wrong passwords identically", func() {
			_, unknownErr := svc.Login(ctx, "ghost", "Admin@123")
			_, wrongErr := svc.Login(ctx, "admin", "Wrong@123")
			Expect(unknownErr).To(HaveOccurred())
			Expect(wrongErr).To(HaveOccurred())
			Expect(unknownErr.Error()).To(Equal(wrongErr.Error()))
		})
	})

	Describe("Access matrix", func() {
		login := func(username, password string) {
			_, err := svc.Login(ctx, username, password)
			Expect(err).NotTo(HaveOccurred())
		}

		It("grants admins everything", func() {
			login("admin", "Admin@123")
			Expect(svc.CanAccessUserData(ctx, admin.ID)).To(BeTrue())
			Expect(svc.CanAccessUserData(ctx, clinician.ID)).To(BeTrue())
			Expect(svc.CanAccessUserData(ctx, patientA.ID)).To(BeTrue())
			Expect(svc.CanAccessUserData(ctx, patientB.ID)).To(BeTrue())
		})

		It("limits clinicians to themselves and assigned patients", func() {
			login("drgrey", "Rounds@42x")
			Expect(svc.CanAccessUserData(ctx, clinician.ID)).To(BeTrue())
			Expect(svc.CanAccessUserData(ctx, patientA.ID)).To(BeTrue())
			Expect(svc.CanAccessUserData(ctx, patientB.ID)).To(BeFalse())
			Expect(svc.CanAccessUserData(ctx, admin.ID)).To(BeFalse())
		})

		It("limits patients to their own data", func() {
			login("pat_a", "Patient@1")
			Expect(svc.CanAccessUserData(ctx, patientA.ID)).To(BeTrue())
			Expect(svc.CanAccessUserData(ctx, patientB.ID)).To(BeFalse())
			Expect(svc.CanAccessUserData(ctx, clinician.ID)).To(BeFalse())
		})

		It("denies everything when logged out", func() {
			login("admin", "Admin@123")
			svc.Logout()
			Expect(svc.CanAccessUserData(ctx, admin.ID)).To(BeFalse())
			Expect(svc.HasPermission(auth.RoleAdmin)).To(BeFalse())
		})
	})

	Describe("Password lifecycle", func() {
		It("changes a password and invalidates the old one", func() {
			_, err := svc.Login(ctx, "pat_a", "Patient@1")
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.ChangePassword(ctx, patientA.ID, "Patient@1", "Fresh@Pass9")).To(Succeed())
			svc.Logout()

			_, err = svc.Login(ctx, "pat_a", "Patient@1")
			Expect(err).To(HaveOccurred())

			_, err = svc.Login(ctx, "pat_a", "Fresh@Pass9")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Operational wiring", func() {
		It("stamps configured origin metadata onto sessions", func() {
			_, err := svc.Login(ctx, "admin", "Admin@123")
			Expect(err).NotTo(HaveOccurred())

			sess, ok := svc.CurrentSession()
			Expect(ok).To(BeTrue())
			Expect(sess.ClientAddr).To(Equal("10.40.0.12"))
			Expect(sess.Hostname).To(Equal("ward-terminal-3"))
		})

		It("exports login and access counters over the metrics endpoint", func() {
			_, err := svc.Login(ctx, "pat_a", "Patient@1")
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.CanAccessUserData(ctx, patientA.ID)).To(BeTrue())
			Expect(svc.CanAccessUserData(ctx, patientB.ID)).To(BeFalse())

			resp, err := http.Get("http://" + obsServer.Addr() + "/metrics") //nolint:noctx // test-only scrape
			Expect(err).NotTo(HaveOccurred())
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Body.Close()).To(Succeed())

			Expect(string(body)).To(ContainSubstring(`caregate_login_attempts_total{result="success"} 1`))
			Expect(string(body)).To(ContainSubstring(`caregate_access_decisions_total{decision="allow"} 1`))
			Expect(string(body)).To(ContainSubstring(`caregate_access_decisions_total{decision="deny"} 1`))
			Expect(string(body)).To(ContainSubstring("caregate_sessions_renewed_total"))
		})

		It("records only audit sources matching the configured filters", func() {
			_, err := svc.Login(ctx, "admin", "Admin@123")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Login(ctx, "ghost", "Wrong@123")
			Expect(err).To(HaveOccurred())

			sink.Info("schema check", "store.migrate", nil, nil)

			out := auditBuf.String()
			Expect(out).To(ContainSubstring("login succeeded"))
			Expect(out).To(ContainSubstring(`"source":"auth.login"`))
			Expect(out).To(ContainSubstring("unknown username"))
			Expect(out).NotTo(ContainSubstring("store.migrate"))
		})
	})

	Describe("Concurrent permission checks", func() {
		const goroutines = 25

		It("keeps the session consistent under concurrent checks and logout", func() {
			_, err := svc.Login(ctx, "drgrey", "Rounds@42x")
			Expect(err).NotTo(HaveOccurred())

			var wg sync.WaitGroup
			for range goroutines {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for range 40 {
						svc.HasPermission(auth.RoleClinician)
						svc.CanAccessUserData(ctx, patientA.ID)
						svc.CurrentSession()
					}
				}()
			}
			wg.Wait()

			Expect(svc.IsAuthenticated()).To(BeTrue())
			svc.Logout()
			Expect(svc.IsAuthenticated()).To(BeFalse())
		})
	})
})

package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/rma-receiver/internal/folder"
	"github.com/zombor/rma-receiver/internal/history"
	"github.com/zombor/rma-receiver/internal/ledger"
	"github.com/zombor/rma-receiver/internal/session"
	"github.com/zombor/rma-receiver/internal/storage"
	"github.com/zombor/rma-receiver/internal/terminal"
)

const (
	menuCapture = " FA00   JSMITH    Failure Analysis Menu     08/27/25   10:41:07\n"

	resultsCapture = "  RMA . . . . : RMA1234567      Note   :  08/27/25   \n" +
		"  1111111111   PN-100       Open                    \n" +
		"  2222222222   PN-100       Open                    \n" +
		"                                        Bottom      \n"

	detailCapture = "  RMA#  :  Repair        SLA  :  N      \n" +
		"  Part Number  :  PN-7781-A             \n" +
		"  Other:                                \n"
)

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		db       *history.BoltDB
		driver   *terminal.ReplayDriver
		trees    folder.Trees
		ledgers  string
		server   *Server
		ghServer *ghttp.Server
		cancel   context.CancelFunc
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()

		var err error
		db, err = history.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		// Captures are written to disk the way a dry run loads them
		captureDir := filepath.Join(tempDir, "captures")
		Expect(os.MkdirAll(captureDir, 0755)).To(Succeed())
		for name, capture := range map[string]string{
			"01-menu.txt":    menuCapture,
			"02-results.txt": resultsCapture,
			"03-detail.txt":  detailCapture,
		} {
			Expect(os.WriteFile(filepath.Join(captureDir, name), []byte(capture), 0644)).To(Succeed())
		}
		driver, err = terminal.LoadReplayDriver(captureDir)
		Expect(err).NotTo(HaveOccurred())

		store := storage.NewLocalStorage()
		trees = folder.Trees{
			Received: filepath.Join(tempDir, "received"),
			Damaged:  filepath.Join(tempDir, "damaged"),
		}
		ledgers = filepath.Join(tempDir, "ledger")

		controller := session.NewController(session.Deps{
			Driver:  driver,
			Macros:  terminal.DefaultMacros(),
			Folders: folder.NewResolver(store, trees),
			Ledger:  ledger.NewWriter(store, ledgers),
			History: db,
		})
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		go controller.Run(ctx)

		server = NewServer(controller, db, BasicAuth{}) // No auth for testing convenience
		ghServer = ghttp.NewServer()
	})

	AfterEach(func() {
		cancel()
		if ghServer != nil {
			ghServer.Close()
		}
		if db != nil {
			db.Close()
		}
	})

	post := func(path string, body any) *http.Response {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.Post(ghServer.URL()+path, "application/json", bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	It("should receive every serial of an RMA", func() {
		// start, two items, finish, damaged toggle, history list
		ghServer.AppendHandlers(
			server.Handler().ServeHTTP,
			server.Handler().ServeHTTP,
			server.Handler().ServeHTTP,
			server.Handler().ServeHTTP,
			server.Handler().ServeHTTP,
			server.Handler().ServeHTTP,
		)

		// --- Step 1: Start ---
		resp := post("/api/session", map[string]any{"rma": "RMA1234567"})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var status session.Status
		Expect(json.NewDecoder(resp.Body).Decode(&status)).To(Succeed())
		Expect(status.Serials).To(Equal(2))
		Expect(status.AssignedTo).To(Equal("Not assigned"))

		// --- Step 2: Advance through the first item ---
		resp = post("/api/session/advance", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		// --- Step 3: Mark the second item damaged ---
		req, err := http.NewRequest("PUT", ghServer.URL()+"/api/session/damaged", bytes.NewBufferString(`{"damaged":true}`))
		Expect(err).NotTo(HaveOccurred())
		damagedResp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		damagedResp.Body.Close()
		Expect(damagedResp.StatusCode).To(Equal(http.StatusOK))

		resp = post("/api/session/advance", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var advanced struct {
			Item session.ItemResult `json:"item"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&advanced)).To(Succeed())
		Expect(advanced.Item.Serial).To(Equal("2222222222"))
		Expect(advanced.Item.DamagedPath).To(Equal(filepath.Join(trees.Damaged, "RMA12xxxx", "RMA123xxx", "RMA1234567")))

		// --- Step 4: Finish ---
		resp = post("/api/session/advance", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var finished struct {
			Item   *session.ItemResult `json:"item"`
			Status session.Status      `json:"status"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&finished)).To(Succeed())
		Expect(finished.Item).To(BeNil())
		Expect(finished.Status.State).To(Equal(session.Finished))

		// Verify the ledger has one line per item
		data, err := os.ReadFile(filepath.Join(ledgers, "2025", "Aug", "Aug 27, 2025.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(bytes.Count(data, []byte("\n"))).To(Equal(2))
		Expect(string(data)).To(ContainSubstring("Assigned To: Not assigned\tReceived by: JSMITH"))

		// Verify the date was typed for both items
		Expect(bytes.Count([]byte(driver.Transcript()), []byte("Aug 27, 2025"))).To(Equal(2))

		// --- Step 5: History ---
		histResp, err := http.Get(ghServer.URL() + "/api/history/sessions")
		Expect(err).NotTo(HaveOccurred())
		defer histResp.Body.Close()
		var sessions []*history.Session
		Expect(json.NewDecoder(histResp.Body).Decode(&sessions)).To(Succeed())
		Expect(sessions).To(HaveLen(1))
		Expect(sessions[0].State).To(Equal("Finished"))
		Expect(sessions[0].Processed).To(Equal(2))

		items, err := db.ListItems(sessions[0].ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(2))
		Expect(items[1].Damaged).To(BeTrue())
	})
})

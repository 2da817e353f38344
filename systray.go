package main

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"slices"
	"strconv"
	"sync"

	"fyne.io/systray"
	"github.com/rs/zerolog"

	"github.com/nedpals/nfc-session/buildinfo"
	"github.com/nedpals/nfc-session/nfc"
)

// cardTypeFilterItem holds a menu item and its associated card type
type cardTypeFilterItem struct {
	menuItem *systray.MenuItem
	cardType string
}

// getLocalIPs returns a list of local IP addresses (excluding loopback)
func getLocalIPs() []string {
	var ips []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}

	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				ips = append(ips, ipNet.IP.String())
			}
		}
	}
	return ips
}

// trayNotifier shows controller notifications in the tray: messages in the
// notice item and tooltip, and a busy icon while a session runs.
type trayNotifier struct {
	mu      sync.Mutex
	mNotice *systray.MenuItem
	idle    []byte
	logger  zerolog.Logger
}

var _ nfc.Notifier = (*trayNotifier)(nil)

func (n *trayNotifier) Notify(message string) {
	n.logger.Info().Msg(message)
	systray.SetTooltip(buildinfo.DisplayName + ": " + message)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.mNotice != nil {
		n.mNotice.SetTitle(message)
	}
}

func (n *trayNotifier) ShowLoading(title string) {
	systray.SetIcon(iconDataBusy)
	systray.SetTooltip(buildinfo.DisplayName + ": " + title)
}

func (n *trayNotifier) HideLoading() {
	n.mu.Lock()
	idle := n.idle
	n.mu.Unlock()
	systray.SetIcon(idle)
}

func (n *trayNotifier) setIdleIcon(icon []byte) {
	n.mu.Lock()
	n.idle = icon
	n.mu.Unlock()
	systray.SetIcon(icon)
}

// SystrayApp manages the system tray interface for the NFC agent
type SystrayApp struct {
	agent         *Agent
	notifier      *trayNotifier
	currentDevice string
	listener      *nfc.Listener

	// Menu items
	mStatus     *systray.MenuItem
	mNotice     *systray.MenuItem
	mTagUID     *systray.MenuItem
	mLastEvent  *systray.MenuItem
	mStart      *systray.MenuItem
	mStop       *systray.MenuItem
	mDeviceMenu *systray.MenuItem

	mServerURL     *systray.MenuItem
	mCopyServerURL *systray.MenuItem

	// Session menu items
	mArmRead    *systray.MenuItem
	mArmWrite   *systray.MenuItem
	mDisarm     *systray.MenuItem
	mContinuous *systray.MenuItem
	mPause      *systray.MenuItem

	deviceMenuItems map[string]*systray.MenuItem

	// Card filter menu items
	mCardFilterMenu *systray.MenuItem
	mFilterAll      *systray.MenuItem
	cardTypeFilters map[string]*cardTypeFilterItem // Maps card type to filter item
}

// NewSystrayApp creates a new systray application
func NewSystrayApp(agent *Agent) *SystrayApp {
	notifier := &trayNotifier{idle: iconData, logger: agent.Logger}
	agent.Notifier = notifier
	s := &SystrayApp{
		agent:           agent,
		notifier:        notifier,
		currentDevice:   agent.Config.NFC.Device,
		deviceMenuItems: make(map[string]*systray.MenuItem),
		cardTypeFilters: make(map[string]*cardTypeFilterItem),
	}
	s.listener = nfc.NewListener(s.onEvent)
	return s
}

// Run starts the systray application
func (s *SystrayApp) Run() {
	systray.Run(s.onReady, s.onExit)
}

// onReady is called when the systray is ready
func (s *SystrayApp) onReady() {
	s.setupUI()
	s.autoStartAgent()
}

// onExit is called when the systray is exiting
func (s *SystrayApp) onExit() {
	s.stopAgent()
}

// setupUI initializes all menu items
func (s *SystrayApp) setupUI() {
	systray.SetIcon(iconData)
	systray.SetTitle(buildinfo.DisplayName)
	systray.SetTooltip(buildinfo.DisplayName)

	// Status section
	s.mStatus = systray.AddMenuItem("Starting...", "Agent Status")
	s.mStatus.Disable()
	s.mNotice = systray.AddMenuItem("No notifications", "Last notification")
	s.mNotice.Disable()
	s.notifier.mu.Lock()
	s.notifier.mNotice = s.mNotice
	s.notifier.mu.Unlock()

	s.mServerURL = systray.AddMenuItem("Server: Not running", "WebSocket URL")
	s.mServerURL.Disable()
	s.mCopyServerURL = systray.AddMenuItem("  Copy Server URL", "Copy WebSocket URL to clipboard")

	systray.AddSeparator()

	// Tag info section
	s.mTagUID = systray.AddMenuItem("Tag: None", "Last tag")
	s.mTagUID.Disable()
	s.mLastEvent = systray.AddMenuItem("Last event: None", "Last session event")
	s.mLastEvent.Disable()

	systray.AddSeparator()

	// Session section
	s.mArmRead = systray.AddMenuItem("Read Next Tag", "Arm the reader for a read")
	s.mArmWrite = systray.AddMenuItem("Write Default Payload", "Arm the reader to write the default payload")
	s.mDisarm = systray.AddMenuItem("Disarm", "Cancel the armed request")
	s.mContinuous = systray.AddMenuItemCheckbox("Continuous Read", "Keep reading after every tag (restarts the agent)", s.agent.Config.NFC.ContinuousRead)
	s.mPause = systray.AddMenuItemCheckbox("Pause Reader", "Stop listening for tags without losing the armed request", false)

	systray.AddSeparator()

	// Device management section
	s.mDeviceMenu = systray.AddMenuItem("Device", "Select NFC Device")
	mRefreshDevices := s.mDeviceMenu.AddSubMenuItem("Refresh Devices", "Refresh device list")

	// Card type filtering section
	s.mCardFilterMenu = systray.AddMenuItem("Card Type Filter", "Filter tags by type")
	s.mFilterAll = s.mCardFilterMenu.AddSubMenuItemCheckbox("All Types", "Allow all card types", len(s.agent.Filters()) == 0)

	allowed := s.agent.Filters()
	for _, cardType := range nfc.GetAllCardTypes() {
		checked := slices.Contains(allowed, cardType)
		menuItem := s.mCardFilterMenu.AddSubMenuItemCheckbox(cardType, "Allow "+cardType+" only", checked)
		s.cardTypeFilters[cardType] = &cardTypeFilterItem{
			menuItem: menuItem,
			cardType: cardType,
		}
	}

	systray.AddSeparator()

	// Agent control section
	s.mStart = systray.AddMenuItem("Start Agent", "Start the NFC agent")
	s.mStop = systray.AddMenuItem("Stop Agent", "Stop the NFC agent")
	s.mStart.Disable() // Disable start since we're auto-starting
	s.mStop.Disable()  // Will be enabled once agent starts

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	go s.handleMenuEvents(mRefreshDevices, mQuit)
}

// autoStartAgent starts the agent automatically
func (s *SystrayApp) autoStartAgent() {
	go func() {
		s.startAgent()
		s.updateDeviceList()
	}()
}

// handleMenuEvents processes all menu click events
func (s *SystrayApp) handleMenuEvents(mRefreshDevices, mQuit *systray.MenuItem) {
	for {
		select {
		case <-s.mStart.ClickedCh:
			s.startAgent()
		case <-s.mStop.ClickedCh:
			s.stopAgent()
		case <-mRefreshDevices.ClickedCh:
			s.updateDeviceList()
		case <-s.mCopyServerURL.ClickedCh:
			if url := s.serverURL(); url != "" && s.agent.Running() {
				if err := copyToClipboard(url); err != nil {
					s.agent.Logger.Warn().Err(err).Msg("Failed to copy to clipboard")
				}
			}
		case <-s.mArmRead.ClickedCh:
			if c := s.agent.Controller(); c != nil {
				c.ArmForRead()
			}
		case <-s.mArmWrite.ClickedCh:
			if c := s.agent.Controller(); c != nil {
				c.ArmForWrite(nil)
			}
		case <-s.mDisarm.ClickedCh:
			if c := s.agent.Controller(); c != nil {
				c.Disarm()
			}
		case <-s.mContinuous.ClickedCh:
			s.toggleContinuous()
		case <-s.mPause.ClickedCh:
			s.togglePause()
		case <-s.mFilterAll.ClickedCh:
			s.handleFilterAll()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}

		// Handle card type filter selection
		s.handleCardFilterSelection()

		// Handle device selection
		s.handleDeviceSelection()
	}
}

func (s *SystrayApp) startAgent() {
	if err := s.agent.Start(s.currentDevice); err != nil {
		s.agent.Logger.Error().Err(err).Msg("Failed to start agent")
		s.updateStatus("Failed to Start")
		s.mServerURL.SetTitle("Server: Not running")
		s.mStart.Enable()
		s.mStop.Disable()
		return
	}
	s.agent.Controller().Bus().SubscribeAll(s.listener)
	s.mPause.Uncheck()
	s.updateStatus("Running")
	s.mServerURL.SetTitle("Server: " + s.serverURL())
	s.mStart.Disable()
	s.mStop.Enable()
}

func (s *SystrayApp) stopAgent() {
	if c := s.agent.Controller(); c != nil {
		c.Bus().UnsubscribeAll(s.listener)
	}
	s.agent.Stop()
	s.updateStatus("Stopped")
	s.mServerURL.SetTitle("Server: Not running")
	s.mStop.Disable()
	s.mStart.Enable()
}

// restartAgent applies configuration changes to a running agent.
func (s *SystrayApp) restartAgent() {
	if !s.agent.Running() {
		return
	}
	s.stopAgent()
	s.startAgent()
}

// onEvent mirrors session events into the tag info section.
func (s *SystrayApp) onEvent(ev nfc.Event) {
	if ev.TagID != "" {
		s.mTagUID.SetTitle("Tag: " + ev.TagID)
	}
	title := "Last event: " + ev.Kind.String()
	if code := nfc.GetErrorCode(ev.Err); code != 0 {
		title += " (" + code.String() + ")"
	}
	s.mLastEvent.SetTitle(title)
}

func (s *SystrayApp) toggleContinuous() {
	enabled := !s.mContinuous.Checked()
	s.agent.SetContinuousRead(enabled)
	if enabled {
		s.mContinuous.Check()
	} else {
		s.mContinuous.Uncheck()
	}
	s.restartAgent()
}

func (s *SystrayApp) togglePause() {
	c := s.agent.Controller()
	if c == nil {
		return
	}
	if c.Suspended() {
		if err := c.Resume(); err != nil {
			s.agent.Logger.Error().Err(err).Msg("Failed to resume reader")
			return
		}
		s.mPause.Uncheck()
		s.updateStatus("Running")
		return
	}
	if err := c.Suspend(); err != nil {
		s.agent.Logger.Error().Err(err).Msg("Failed to pause reader")
		return
	}
	s.mPause.Check()
	s.updateStatus("Paused")
}

// handleFilterAll clears every card type filter
func (s *SystrayApp) handleFilterAll() {
	s.mFilterAll.Check()
	for _, filter := range s.cardTypeFilters {
		filter.menuItem.Uncheck()
	}
	s.agent.AllowAllCardTypes()
	s.restartAgent()
}

// handleCardFilterSelection processes card type filter menu selections
func (s *SystrayApp) handleCardFilterSelection() {
	for _, filter := range s.cardTypeFilters {
		select {
		case <-filter.menuItem.ClickedCh:
			s.handleCardTypeToggle(filter)
		default:
			// No click event for this filter
		}
	}
}

// handleCardTypeToggle toggles a card type filter
func (s *SystrayApp) handleCardTypeToggle(filter *cardTypeFilterItem) {
	allow := !filter.menuItem.Checked()
	s.agent.SetAllowCardType(filter.cardType, allow)
	if allow {
		filter.menuItem.Check()
	} else {
		filter.menuItem.Uncheck()
	}

	// If no filters active, revert to All
	if len(s.agent.Filters()) == 0 {
		s.mFilterAll.Check()
	} else {
		s.mFilterAll.Uncheck()
	}
	s.restartAgent()
}

// handleDeviceSelection processes device menu selections
func (s *SystrayApp) handleDeviceSelection() {
	for deviceName, menuItem := range s.deviceMenuItems {
		select {
		case <-menuItem.ClickedCh:
			if s.currentDevice != deviceName {
				s.switchDevice(deviceName, menuItem)
			}
		default:
			// No click event for this menu item
		}
	}
}

// switchDevice switches to a different NFC device
func (s *SystrayApp) switchDevice(deviceName string, menuItem *systray.MenuItem) {
	for _, item := range s.deviceMenuItems {
		item.Uncheck()
	}
	menuItem.Check()
	s.currentDevice = deviceName
	s.restartAgent()
}

// updateDeviceList refreshes the list of available devices
func (s *SystrayApp) updateDeviceList() {
	for _, item := range s.deviceMenuItems {
		item.Hide()
	}
	s.deviceMenuItems = make(map[string]*systray.MenuItem)

	if s.agent.Config.NFC.Mock {
		return
	}
	devices, err := nfc.ListDevices()
	if err != nil {
		s.agent.Logger.Warn().Err(err).Msg("Error listing devices")
		return
	}

	for _, device := range devices {
		deviceName := device
		isChecked := (s.currentDevice == deviceName) || (s.currentDevice == "" && len(s.deviceMenuItems) == 0)
		item := s.mDeviceMenu.AddSubMenuItemCheckbox(deviceName, "Select this device", isChecked)
		s.deviceMenuItems[deviceName] = item

		if isChecked && s.currentDevice == "" {
			s.currentDevice = deviceName
		}
	}
}

// updateStatus updates the status menu item and icon
func (s *SystrayApp) updateStatus(status string) {
	s.mStatus.SetTitle(status)

	switch status {
	case "Running":
		s.notifier.setIdleIcon(iconDataConnected)
	case "Failed to Start":
		s.notifier.setIdleIcon(iconDataError)
	case "Stopped":
		s.notifier.setIdleIcon(iconDataStopped)
	default:
		s.notifier.setIdleIcon(iconData)
	}
}

// serverURL returns the WebSocket URL clients should connect to
func (s *SystrayApp) serverURL() string {
	if !s.agent.Config.Server.Enabled {
		return ""
	}
	host := s.agent.Config.Server.Host
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
		if ips := getLocalIPs(); len(ips) > 0 {
			host = ips[0]
		}
	}
	return fmt.Sprintf("ws://%s/ws", net.JoinHostPort(host, strconv.Itoa(s.agent.Config.Server.Port)))
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	if _, err := stdin.Write([]byte(text)); err != nil {
		return err
	}

	stdin.Close()
	return cmd.Wait()
}

package main

import (
	"fmt"
	"log"

	"github.com/ebfe/scard"
	"go.uber.org/zap"

	"github.com/rliebscher/OpenSC/pkg/iso7816"
	"github.com/rliebscher/OpenSC/pkg/micardo"
	"github.com/rliebscher/OpenSC/pkg/tlv"
)

func main() {
	// --- 1. Hardware Setup ---
	ctx, card := connectToCard()

	defer func() {
		if err := ctx.Release(); err != nil {
			log.Printf("Warning: Failed to release context: %v", err)
		}
	}()

	defer func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			log.Printf("Warning: Failed to disconnect card: %v", err)
		}
	}()

	status, err := card.Status()
	if err != nil {
		log.Fatalf("Error reading card status: %s", err)
	}
	if !micardo.Match(status.Atr) {
		log.Fatalf("Card is not a supported MICARDO 2 card (ATR %X)", status.Atr)
	}
	fmt.Printf(">> Recognized MICARDO 2 card (ATR %X)\n", status.Atr)

	// --- 2. Logic Setup ---
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Error creating logger: %s", err)
	}
	defer func() {
		// Stderr sync failures are expected on some platforms.
		_ = logger.Sync()
	}()

	session := micardo.NewSession(card, logger)
	defer session.Close()

	// --- 3. Execution Flow ---

	// Step 1: Walk to the EstEID personal data file and describe it.
	fd := step1SelectPersonalData(session)

	// Step 2: If the file is there, read its first record (the surname).
	if fd != nil {
		step2ReadSurname(session)
	} else {
		fmt.Println("\n>> Step 2 Skipped: personal data file not selected.")
	}

	// Step 3: Prepare the signature environment for the authentication key.
	step3PrepareSigning(session)

	fmt.Println("\n>> Demo Finished")
}

// =========================================================================
// Helper Functions
// =========================================================================

// connectToCard handles the PC/SC context establishment and reader connection.
func connectToCard() (*scard.Context, *scard.Card) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		log.Fatalf("Error establishing context: %s", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatal("No smart card reader found.")
	}

	fmt.Printf(">> Using reader: %s\n", readers[0])

	card, err := ctx.Connect(readers[0], scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatalf("Error connecting to card: %s", err)
	}

	return ctx, card
}

// step1SelectPersonalData resolves the absolute path MF/EEEE/5044 of the
// EstEID personal data file and prints its descriptor.
func step1SelectPersonalData(session *micardo.Session) *micardo.FileDescriptor {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 1: SELECT 3F00/EEEE/5044 (personal data)")
	fmt.Println("=============================================")

	fd, err := session.SelectFile(micardo.AbsolutePath(0x3F00, 0xEEEE, 0x5044), true)
	if err != nil {
		log.Printf("Step 1 Warning: %v", err)
		return nil
	}

	fmt.Printf("   File:      %04X (%s)\n", fd.ID, fd.Type)
	fmt.Printf("   Size:      %d bytes\n", fd.Size)
	fmt.Printf("   Shareable: %v\n", fd.Shareable)
	if len(fd.Name) > 0 {
		fmt.Printf("   Name:      %s\n", fd.DisplayName())
	}
	for _, rule := range fd.Rules {
		fmt.Printf("   Rule:      AM %02X, %d condition(s)\n", rule.AccessMode, len(rule.Conditions))
	}
	return fd
}

// step2ReadSurname reads record 1 of the selected personal data file.
func step2ReadSurname(session *micardo.Session) {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 2: READ RECORD 1 (surname)")
	fmt.Println("=============================================")

	trace, err := session.Client().Send(iso7816.NewReadRecord(0x00, 1))
	if err != nil {
		log.Printf("Step 2 Warning: transmission failed: %v", err)
		return
	}
	if err := micardo.CheckStatus(trace.Status()); err != nil {
		log.Printf("Step 2 Warning: %v", err)
		return
	}
	fmt.Printf("   Surname: %s\n", tlv.MakeSafeASCII(trace.Data()))
}

// step3PrepareSigning points the security environment at the EstEID
// authentication key and signs a fixed digest. On a real card this fails
// until the PIN has been verified, which the demo does not do.
func step3PrepareSigning(session *micardo.Session) {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 3: MSE + COMPUTE DIGITAL SIGNATURE")
	fmt.Println("=============================================")

	if _, err := session.SelectFile(micardo.AbsolutePath(0x3F00, 0xEEEE), false); err != nil {
		log.Printf("Step 3 Warning: %v", err)
		return
	}

	if err := session.SetSecurityEnvironment(micardo.OperationSign, tlv.Hex("0100"), 0); err != nil {
		log.Printf("Step 3 Warning: %v", err)
		return
	}
	fmt.Println("   Security environment ready.")

	digest := make([]byte, 36)
	sig, err := session.ComputeSignature(digest)
	if err != nil {
		log.Printf("Step 3 Warning: signature failed (PIN not verified?): %v", err)
		return
	}
	fmt.Printf("   Signature: %X\n", sig)
}

/*
Package iso7816 implements the APDU plumbing needed to drive smart cards
according to the ISO/IEC 7816 standard.

It provides Command and Response APDU encoding, Status Word (SW) analysis,
builders for the commands a file-system oriented driver issues (SELECT,
READ RECORD, MANAGE SECURITY ENVIRONMENT, PERFORM SECURITY OPERATION,
GET RESPONSE), and a Client that hides the T=0 transport behaviors.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - Other: Various error conditions.

# Usage

	client := iso7816.NewClient(card)
	trace, err := client.Send(iso7816.NewSelect(0x00, iso7816.SelectMF, 0x3F00, true))
	if err != nil {
	    log.Fatal(err)
	}
	if trace.IsSuccess() {
	    fmt.Printf("FCI: %X\n", trace.Last().Response.Data)
	}
*/
package iso7816

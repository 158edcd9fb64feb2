package client

import "fmt"

const instructionTemplate = "Below is an instruction that describes a task. " +
	"Write a response that appropriately completes the request.\n\n" +
	"### Instruction:\n\n%s### Response:\n\n"

// WrapInstruction embeds text in the instruction-following prompt the
// bundled models were tuned on.
func WrapInstruction(text string) string {
	return fmt.Sprintf(instructionTemplate, text)
}

// WrapAdvertisement asks for an ad text built from keywords.
func WrapAdvertisement(keywords string) string {
	return WrapInstruction("Write an ad text based one the given keywords: " + keywords)
}
